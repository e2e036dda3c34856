// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	"questa-service/internal/domain/auth"
	wstypes "questa-service/internal/domain/websocket"
	"questa-service/internal/pkg/jwt"
	"questa-service/internal/pkg/session"

	"go.uber.org/zap"
)

// Hub fans real-time account messages out to the websocket connections of
// each identity. It also owns connection auth: a client must present a
// valid access token with a live Redis session before it is registered.
type Hub struct {
	// Registered clients by identity ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	// Registration/unregistration
	Register   chan *Client
	unregister chan *Client

	// Broadcasting
	broadcast chan *BroadcastMessage

	// Auth dependencies
	jwtManager *jwt.Manager
	sessions   *session.Store

	logger *zap.Logger
}

type BroadcastMessage struct {
	IdentityIDs []string
	Channel     wstypes.ChannelType
	Message     *wstypes.WSMessage
}

func NewHub(jwtManager *jwt.Manager, sessions *session.Store, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		jwtManager: jwtManager,
		sessions:   sessions,
		logger:     logger,
	}
}

// AuthenticateClient validates the access token and resolves the live
// session behind it.
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	claims, err := h.jwtManager.VerifyAccessToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	sessionData, err := h.sessions.Get(ctx, claims.IdentityID, claims.ID)
	if err != nil {
		return nil, ErrSessionExpired
	}

	return &ClientAuth{
		IdentityID: claims.IdentityID,
		SessionID:  claims.ID,
		Email:      sessionData.Email,
	}, nil
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.identityID] == nil {
		h.clients[client.identityID] = make(map[*Client]bool)
	}
	h.clients[client.identityID][client] = true

	h.logger.Info("websocket client connected",
		zap.String("identity_id", client.identityID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"identity_id": client.identityID,
		"session_id":  client.sessionID,
		"channels":    wstypes.DefaultChannels,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.identityID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.identityID)
			}

			h.logger.Info("websocket client disconnected",
				zap.String("identity_id", client.identityID),
				zap.String("session_id", client.sessionID),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.IdentityIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				if client.IsSubscribed(msg.Channel) {
					client.SendMessage(msg.Message)
				}
			}
		}
	} else {
		for _, identityID := range msg.IdentityIDs {
			if clients, ok := h.clients[identityID]; ok {
				for client := range clients {
					if client.IsSubscribed(msg.Channel) {
						client.SendMessage(msg.Message)
					}
				}
			}
		}
	}
}

// ========== Account-facing pushes ==========

// PushNotice delivers a toast to every connection of the identity.
func (h *Hub) PushNotice(identityID string, notice wstypes.NoticeData) {
	h.broadcast <- &BroadcastMessage{
		IdentityIDs: []string{identityID},
		Channel:     wstypes.ChannelNotices,
		Message:     wstypes.NewMessage(wstypes.EventTypeNotice, notice),
	}
}

// PushNavigation tells the identity's connections to switch views.
func (h *Hub) PushNavigation(identityID, route string) {
	h.broadcast <- &BroadcastMessage{
		IdentityIDs: []string{identityID},
		Channel:     wstypes.ChannelNavigation,
		Message:     wstypes.NewMessage(wstypes.EventTypeNavigate, wstypes.NavigateData{Route: route}),
	}
}

// PushAuthEvent mirrors a provider auth event to the identity's connections.
func (h *Hub) PushAuthEvent(evt auth.Event) {
	h.broadcast <- &BroadcastMessage{
		IdentityIDs: []string{evt.IdentityID},
		Channel:     wstypes.ChannelAuth,
		Message: wstypes.NewMessage(wstypes.EventTypeAuth, wstypes.AuthEventData{
			Event:      string(evt.Type),
			IdentityID: evt.IdentityID,
			OccurredAt: evt.OccurredAt,
		}),
	}
}

// DisconnectIdentity forcefully closes every connection of an identity,
// e.g. after a sign-out invalidated its sessions.
func (h *Hub) DisconnectIdentity(identityID, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[identityID]; ok {
		disconnectMsg := wstypes.NewMessage(wstypes.EventTypeDisconnected, map[string]interface{}{
			"reason": reason,
		})

		for client := range clients {
			client.SendMessage(disconnectMsg)
			client.Close()
		}

		delete(h.clients, identityID)
		h.logger.Info("disconnected all websocket clients",
			zap.String("identity_id", identityID),
			zap.String("reason", reason),
		)
	}
}

func (h *Hub) GetConnectedClients(identityID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[identityID]; ok {
		return len(clients)
	}
	return 0
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
}
