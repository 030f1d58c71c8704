package contracts

import "time"

// EventType categorizes custody events.
type EventType string

const (
	EventRegistration     EventType = "REGISTRATION"
	EventTransfer         EventType = "TRANSFER"
	EventAccessRequest    EventType = "ACCESS_REQUEST"
	EventAccessGranted    EventType = "ACCESS_GRANTED"
	EventAccessDenied     EventType = "ACCESS_DENIED"
	EventAnalysisStart    EventType = "ANALYSIS_START"
	EventAnalysisEnd      EventType = "ANALYSIS_END"
	EventTagAdded         EventType = "TAG_ADDED"
	EventStatusChange     EventType = "STATUS_CHANGE"
	EventJudicialSubmit   EventType = "JUDICIAL_SUBMIT"
	EventJudicialDecision EventType = "JUDICIAL_DECISION"
	EventVerification     EventType = "VERIFICATION"
	EventExport           EventType = "EXPORT"
)

// CustodyEvent is one immutable record of an accepted action against an
// evidence item. Events are appended, never updated or deleted.
type CustodyEvent struct {
	ID         string    `json:"id"`
	EvidenceID string    `json:"evidence_id"`
	Type       EventType `json:"type"`

	FromEntity string `json:"from_entity,omitempty"`
	FromOrg    string `json:"from_org,omitempty"`
	ToEntity   string `json:"to_entity,omitempty"`
	ToOrg      string `json:"to_org,omitempty"`
	Reason     string `json:"reason,omitempty"`

	// Details is intentionally untyped: its shape varies per event type
	// and is not enforced by the ledger. Values must be JSON-compatible.
	Details map[string]any `json:"details,omitempty"`

	Timestamp     time.Time `json:"timestamp"`
	PerformedBy   string    `json:"performed_by"`
	PerformerOrg  string    `json:"performer_org"`
	PerformerRole string    `json:"performer_role"`

	// Commit position assigned by the ledger.
	TxID     string `json:"tx_id"`
	Sequence uint64 `json:"sequence"`
	Index    int    `json:"index"`

	Verified bool `json:"verified"`

	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// Clone returns a copy of the event with its own Details map.
func (e *CustodyEvent) Clone() *CustodyEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// Before reports whether e sorts before o in ledger order:
// timestamp first, then commit sequence, then intra-commit index.
func (e *CustodyEvent) Before(o *CustodyEvent) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	if e.Sequence != o.Sequence {
		return e.Sequence < o.Sequence
	}
	return e.Index < o.Index
}
