package persistence

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// emitEvent is a helper method to emit events
func (p *Persistence) emitEvent(event PersistenceEvent) {
	if p.bus != nil {
		p.bus.Emit(string(event.Type), event)
	}
}

// withEventEmission wraps an operation with start, success, and failure events
func withEventEmission[T any](
	p *Persistence,
	operation string,
	startEventType PersistenceEventType,
	successEventType PersistenceEventType,
	failedEventType PersistenceEventType,
	collectionID string,
	input any,
	fn func() (T, error),
) (T, error) {
	startTime := time.Now()

	p.emitEvent(createEvent(startEventType, operation, collectionID, input, nil, nil, nil, startTime))

	result, err := fn()
	if p.recorder != nil {
		p.recorder.ObserveWrite(operation, outcomeOf(err), time.Since(startTime))
	}

	if err != nil {
		errStr := err.Error()
		p.emitEvent(createEvent(failedEventType, operation, collectionID, input, nil, &errStr, issuesOf(err), startTime))
		var zero T
		return zero, err
	}

	p.emitEvent(createEvent(successEventType, operation, collectionID, input, result, nil, nil, startTime))
	return result, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConfirmationRequired):
		return "unconfirmed"
	default:
		return "error"
	}
}

// RegisterSubscription registers a callback for a specific persistence event. It returns
// a unique ID that can be used to unregister the subscription later.
func (p *Persistence) RegisterSubscription(options RegisterSubscriptionOptions) string {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	unsubscribe := p.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()

	p.subscriptions[id] = &SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Unsubscribe: unsubscribe,
		Label:       options.Label,
		Description: options.Description,
	}

	p.emitEvent(createEvent(SubscriptionRegister, "register_subscription", "", map[string]any{
		"event":          options.Event,
		"subscriptionId": id,
	}, nil, nil, nil, time.Time{}))
	return id
}

// UnregisterSubscription removes a subscription by its ID.
func (p *Persistence) UnregisterSubscription(id string) {
	p.subMu.Lock()
	info, ok := p.subscriptions[id]
	if ok {
		info.Unsubscribe()
		delete(p.subscriptions, id)
	}
	p.subMu.Unlock()

	if !ok {
		p.logger.Debug("unknown subscription", zap.String("id", id))
		return
	}
	p.emitEvent(createEvent(SubscriptionUnregister, "unregister_subscription", "", map[string]any{
		"subscriptionId": id,
	}, nil, nil, nil, time.Time{}))
}

// Subscriptions returns a list of all currently active subscriptions.
func (p *Persistence) Subscriptions() ([]SubscriptionInfo, error) {
	p.subMu.RLock()
	defer p.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(p.subscriptions))
	for _, sub := range p.subscriptions {
		subs = append(subs, *sub)
	}
	return subs, nil
}
