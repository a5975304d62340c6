// Package notify reports rollout progress to operators.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// =============================================================================
// Events
// =============================================================================

// EventType identifies a rollout lifecycle event.
type EventType string

const (
	EventRolloutStarted    EventType = "rollout.started"
	EventWaveStarted       EventType = "wave.started"
	EventWaveSucceeded     EventType = "wave.succeeded"
	EventWaveFailed        EventType = "wave.failed"
	EventRolloutRolledBack EventType = "rollout.rolled_back"
	EventRolloutCompleted  EventType = "rollout.completed"
)

// Event describes one step of a rollout.
type Event struct {
	Type      EventType `json:"type"`
	RolloutID string    `json:"rollout_id"`
	PlanID    string    `json:"plan_id"`
	Wave      int       `json:"wave,omitempty"`
	Services  []string  `json:"services,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(t EventType, rolloutID, planID string) Event {
	return Event{
		Type:      t,
		RolloutID: rolloutID,
		PlanID:    planID,
		Timestamp: time.Now().UTC(),
	}
}

// WithWave returns a copy of the event scoped to a wave.
func (e Event) WithWave(number int, services []string) Event {
	e.Wave = number
	e.Services = append([]string(nil), services...)
	return e
}

// WithMessage returns a copy of the event with a message.
func (e Event) WithMessage(msg string) Event {
	e.Message = msg
	return e
}

// =============================================================================
// Notifier Interface
// =============================================================================

// Notifier delivers rollout events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// =============================================================================
// Log Notifier
// =============================================================================

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs events.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Notify logs the event. Failures are logged at warn level.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if event.Type == EventWaveFailed || event.Type == EventRolloutRolledBack {
		level = slog.LevelWarn
	}

	n.logger.Log(ctx, level, "rollout event",
		"type", event.Type,
		"rollout_id", event.RolloutID,
		"plan_id", event.PlanID,
		"wave", event.Wave,
		"services", event.Services,
		"message", event.Message,
	)
	return nil
}

// =============================================================================
// Multi Notifier
// =============================================================================

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers the event to every notifier, even if some fail.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// No-Op Notifier (for development/testing)
// =============================================================================

// NoOpNotifier drops every event.
type NoOpNotifier struct{}

// Notify does nothing.
func (NoOpNotifier) Notify(ctx context.Context, event Event) error {
	return nil
}
