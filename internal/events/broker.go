// internal/events/broker.go
package events

import (
	"sync"

	"questa-service/internal/domain/auth"

	"go.uber.org/zap"
)

const subscriberBuffer = 16

// Broker routes provider-pushed auth events to at most one subscriber per
// identity. Subscribing again for the same identity replaces the previous
// subscription; the unsubscribe func tears the channel down.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]chan auth.Event
	logger *zap.Logger
}

func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		subs:   make(map[string]chan auth.Event),
		logger: logger,
	}
}

// Subscribe registers the single active subscriber for an identity and
// returns the event channel plus an unsubscribe func. Unsubscribing closes
// the channel.
func (b *Broker) Subscribe(identityID string) (<-chan auth.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.subs[identityID]; ok {
		close(prev)
	}

	ch := make(chan auth.Event, subscriberBuffer)
	b.subs[identityID] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.subs[identityID]; ok && cur == ch {
			delete(b.subs, identityID)
			close(cur)
		}
	}
	return ch, unsubscribe
}

// Publish delivers an event to the identity's subscriber without ever
// blocking the provider. A full buffer drops the event, except for
// SIGNED_OUT: stale pending events are drained first so sign-out always
// lands.
func (b *Broker) Publish(evt auth.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[evt.IdentityID]
	if !ok {
		return
	}

	if evt.Type == auth.EventSignedOut {
		for {
			select {
			case ch <- evt:
				return
			default:
			}
			select {
			case stale := <-ch:
				b.logger.Warn("dropping stale auth event for sign-out",
					zap.String("identity_id", evt.IdentityID),
					zap.String("type", string(stale.Type)),
				)
			default:
			}
		}
	}

	select {
	case ch <- evt:
	default:
		b.logger.Warn("auth event dropped, subscriber too slow",
			zap.String("identity_id", evt.IdentityID),
			zap.String("type", string(evt.Type)),
		)
	}
}

// Close tears down every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
