package engine

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/metric"
	"github.com/c360/visionflow/operation"
)

// SubjectPrefix is the NATS subject prefix of engine events
const SubjectPrefix = "visionflow.events"

// Publisher sends raw event payloads. *natsclient.Client implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subject returns the subject events of one operation are published on
func Subject(engine, operation string) string {
	return SubjectPrefix + "." + engine + "." + operation
}

// Event is the JSON payload published for every operation state change.
type Event struct {
	Engine    string    `json:"engine"`
	RunID     string    `json:"run_id,omitempty"`
	Operation string    `json:"operation"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Error     string    `json:"error,omitempty"`
	Class     string    `json:"class,omitempty"`
	Time      time.Time `json:"time"`
}

// NewEvent converts a state event into its published form
func NewEvent(engine, runID string, ev operation.StateEvent) Event {
	out := Event{
		Engine:    engine,
		RunID:     runID,
		Operation: ev.Operation,
		From:      ev.From.String(),
		To:        ev.To.String(),
		Time:      ev.Time.UTC(),
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
		out.Class = errors.Classify(ev.Err).String()
	}
	return out
}

// EventPublisher forwards state changes to a Publisher. A nil
// *EventPublisher publishes nothing. Dropped events are counted and logged.
type EventPublisher struct {
	engine string
	pub    Publisher
	core   *metric.Metrics
	logger *slog.Logger
}

func newEventPublisher(engine string, pub Publisher, core *metric.Metrics, logger *slog.Logger) *EventPublisher {
	if pub == nil {
		return nil
	}
	return &EventPublisher{engine: engine, pub: pub, core: core, logger: logger}
}

func (p *EventPublisher) publish(runID string, ev operation.StateEvent) {
	if p == nil {
		return
	}

	data, err := json.Marshal(NewEvent(p.engine, runID, ev))
	if err == nil {
		err = p.pub.Publish(Subject(p.engine, ev.Operation), data)
	}
	if p.core != nil {
		p.core.RecordEventPublished(p.engine, err == nil)
	}
	if err != nil {
		p.logger.Debug("State event dropped", "operation", ev.Operation, "error", err)
	}
}
