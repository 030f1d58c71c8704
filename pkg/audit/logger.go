package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/google/uuid"
)

// EventType classifies an operator audit record.
type EventType string

const (
	// EventDenied is an operation refused by authorization or custody rules.
	EventDenied EventType = "DENIED"
	// EventConflict is an operation that lost a commit race.
	EventConflict EventType = "CONFLICT"
	// EventExport is a report pack written to an artifact store.
	EventExport EventType = "EXPORT"
)

// Event is one operator audit record. These sit outside every evidence
// ledger: they capture attempts that left no custody event behind.
type Event struct {
	ID           string         `json:"id"`
	Seq          uint64         `json:"seq"`
	ActorID      string         `json:"actor_id"`
	Organization string         `json:"organization,omitempty"`
	Role         string         `json:"role,omitempty"`
	Type         EventType      `json:"type"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Logger records operator audit events.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error
}

// JSONLogger writes one JSON object per line. Seq numbers the records
// this logger has written, starting at 1.
type JSONLogger struct {
	mu    sync.Mutex
	enc   *json.Encoder
	seq   uint64
	clock func() time.Time
}

// NewJSONLogger writes records to w.
func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{enc: json.NewEncoder(w), clock: time.Now}
}

// WithClock replaces the timestamp source.
func (l *JSONLogger) WithClock(clock func() time.Time) *JSONLogger {
	l.clock = clock
	return l
}

// Record writes one event attributed to the identity in ctx, or to
// "anonymous" when there is none.
func (l *JSONLogger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	ev := Event{
		ID:       uuid.NewString(),
		ActorID:  "anonymous",
		Type:     eventType,
		Action:   action,
		Resource: resource,
		Metadata: metadata,
	}
	if id, err := auth.IdentityFrom(ctx); err == nil {
		ev.ActorID = id.SubjectID
		ev.Organization = string(id.OrganizationID)
		ev.Role = string(id.Role)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	ev.Seq = l.seq
	ev.Timestamp = l.clock().UTC()
	return l.enc.Encode(ev)
}

// Discard drops every record.
var Discard Logger = discard{}

type discard struct{}

func (discard) Record(context.Context, EventType, string, string, map[string]any) error { return nil }
