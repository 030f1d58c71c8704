package observability

import (
	"context"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Custody semantic convention attributes.
var (
	AttrOperation    = attribute.Key("evidentia.operation")
	AttrEvidenceID   = attribute.Key("evidentia.evidence.id")
	AttrSubjectID    = attribute.Key("evidentia.subject.id")
	AttrOrganization = attribute.Key("evidentia.subject.organization")
	AttrRole         = attribute.Key("evidentia.subject.role")
	AttrIntegrityOK  = attribute.Key("evidentia.integrity.match")
	AttrErrorType    = attribute.Key("error.type")
)

// CustodyOperation creates attributes for a custody engine operation.
func CustodyOperation(op, evidenceID string, id auth.Identity) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String(op),
		AttrEvidenceID.String(evidenceID),
		AttrSubjectID.String(id.SubjectID),
		AttrOrganization.String(string(id.OrganizationID)),
		AttrRole.String(string(id.Role)),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
