// Package events publishes ward workflow events (admissions, transfers,
// discharges, care unit closures) to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Type string

const (
	PatientAdmitted    Type = "patient.admitted"
	PatientTransferred Type = "patient.transferred"
	PatientDischarged  Type = "patient.discharged"
	CareUnitDeleted    Type = "careunit.deleted"
)

// Event is the JSON envelope written to the broker.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       Type                   `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	ActorID    *uuid.UUID             `json:"actor_id,omitempty"`
	Data       map[string]interface{} `json:"data"`
}

func New(t Type, actor *uuid.UUID, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		ActorID:    actor,
		Data:       data,
	}
}

// Publisher hands an event to the transport. Callers publish after their
// transaction commits and treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event_id", evt.ID.String()).
		Str("event_type", string(evt.Type)).
		Interface("data", evt.Data).
		Msg("ward event")
	return nil
}

// Recorder observes publish outcomes, typically telemetry.Metrics.
type Recorder interface {
	EventPublished(eventType, outcome string)
}

// Emitter is the fire-and-forget front of a Publisher used by the domain
// services: a failed publish is logged and counted, never returned.
type Emitter struct {
	pub     Publisher
	rec     Recorder
	logger  zerolog.Logger
	timeout time.Duration
}

func NewEmitter(pub Publisher, rec Recorder, logger zerolog.Logger) *Emitter {
	return &Emitter{pub: pub, rec: rec, logger: logger, timeout: 5 * time.Second}
}

// Emit publishes evt with its own deadline, detached from request
// cancellation so a client hang-up after commit does not drop the event.
func (e *Emitter) Emit(ctx context.Context, evt Event) {
	if e == nil || e.pub == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	outcome := "success"
	if err := e.pub.Publish(pubCtx, evt); err != nil {
		outcome = "error"
		e.logger.Warn().Err(err).
			Str("event_id", evt.ID.String()).
			Str("event_type", string(evt.Type)).
			Msg("failed to publish ward event")
	}
	if e.rec != nil {
		e.rec.EventPublished(string(evt.Type), outcome)
	}
}
