package ports

import (
	"context"

	"github.com/layer-3/sigil/core"
)

// AuditSink records authentication attempts to an append-only trail.
// Implementations must tolerate being called on the request path: failures
// are logged, never propagated into the auth decision.
type AuditSink interface {
	Record(ctx context.Context, event core.AuditEvent)
}
