// internal/websocket/notifier.go
package websocket

import (
	"time"

	"questa-service/internal/account"
	wstypes "questa-service/internal/domain/websocket"
)

// HubNotifier pushes account notices to an identity's live connections.
// It satisfies account.Notifier so the registry can hand one to each
// manager it creates.
type HubNotifier struct {
	hub        *Hub
	identityID string
}

func NewHubNotifier(hub *Hub, identityID string) *HubNotifier {
	return &HubNotifier{hub: hub, identityID: identityID}
}

func (n *HubNotifier) Info(title, message string) {
	n.push(account.SeverityInfo, title, message)
}

func (n *HubNotifier) Error(title, message string) {
	n.push(account.SeverityError, title, message)
}

func (n *HubNotifier) push(severity account.Severity, title, message string) {
	n.hub.PushNotice(n.identityID, wstypes.NoticeData{
		Severity: string(severity),
		Title:    title,
		Message:  message,
		At:       time.Now(),
	})
}

// HubNavigator pushes view changes the same way.
type HubNavigator struct {
	hub        *Hub
	identityID string
}

func NewHubNavigator(hub *Hub, identityID string) *HubNavigator {
	return &HubNavigator{hub: hub, identityID: identityID}
}

func (n *HubNavigator) GoHome()  { n.hub.PushNavigation(n.identityID, "/") }
func (n *HubNavigator) GoLogin() { n.hub.PushNavigation(n.identityID, "/login") }
