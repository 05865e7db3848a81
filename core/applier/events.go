package applier

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ApplyEventType names an event published on the applier bus.
type ApplyEventType string

const (
	ApplyStart   ApplyEventType = "apply:start"
	ApplySuccess ApplyEventType = "apply:success"
	ApplyFailed  ApplyEventType = "apply:failed"
	EntryStart   ApplyEventType = "entry:start"
	EntrySuccess ApplyEventType = "entry:success"
	EntryFailed  ApplyEventType = "entry:failed"
)

// ApplyEvent is published for the start and end of every run and every entry.
type ApplyEvent struct {
	Type      ApplyEventType `json:"type"`
	Timestamp int64          `json:"timestamp"` // Unix milliseconds
	RunID     string         `json:"runId,omitempty"`
	Manifest  string         `json:"manifest,omitempty"`
	Entry     *EntryResult   `json:"entry,omitempty"`
	Report    *ApplyReport   `json:"report,omitempty"`
	Error     *string        `json:"error,omitempty"`
	Duration  *int64         `json:"duration,omitempty"` // milliseconds
}

// EventCallback handles an ApplyEvent.
type EventCallback func(ctx context.Context, event ApplyEvent) error

// RegisterSubscriptionOptions defines options for registering a subscription.
type RegisterSubscriptionOptions struct {
	Event       ApplyEventType
	Label       *string
	Description *string
	Callback    EventCallback
}

// SubscriptionInfo describes an active subscription.
type SubscriptionInfo struct {
	ID          string         `json:"id"`
	Event       ApplyEventType `json:"event"`
	Label       *string        `json:"label,omitempty"`
	Description *string        `json:"description,omitempty"`
	Unsubscribe func()         `json:"-"`
}

// RegisterSubscription registers a callback for an event type. It returns an ID
// that can be used to unregister the subscription later.
func (a *Applier) RegisterSubscription(options RegisterSubscriptionOptions) string {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	unsubscribe := a.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()
	a.subscriptions[id] = &SubscriptionInfo{
		ID:          id,
		Event:       options.Event,
		Label:       options.Label,
		Description: options.Description,
		Unsubscribe: unsubscribe,
	}
	return id
}

// UnregisterSubscription removes a subscription by its ID.
func (a *Applier) UnregisterSubscription(id string) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	if info, ok := a.subscriptions[id]; ok {
		info.Unsubscribe()
		delete(a.subscriptions, id)
	}
}

// Subscriptions returns the active subscriptions.
func (a *Applier) Subscriptions() []SubscriptionInfo {
	a.subMu.RLock()
	defer a.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(a.subscriptions))
	for _, sub := range a.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}

func (a *Applier) emit(event ApplyEvent) {
	if a.bus == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	a.bus.Emit(string(event.Type), event)
}
