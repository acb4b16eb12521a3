// Package upstream defines the narrow capability interface the cache
// depends on (spec §4.3) and a concrete implementation backed by Google
// Cloud Secret Manager. No SDK-specific type leaks past this package.
package upstream

import (
	"context"
	"time"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
)

// SyncResult reports the outcome of an incremental sync: the spec
// requires a distinct has-changes/no-changes outcome rather than just an
// empty slice, so zero-length Changes plus Changed=false is different
// from a transient empty slice representing "don't know".
type SyncResult struct {
	Changes []secretmeta.Entry
	Changed bool
}

// Adapter is the capability surface the registry, pacer and refresh loop
// use to talk to the remote secrets API. authenticate is called at most
// once per tenant lifetime (spec §5, §7); every other method reports
// failures as messages in the form classify.Classify understands, and
// callers classify them.
type Adapter interface {
	// Authenticate performs the (possibly slow) auth handshake once.
	// persistedStatePath is an opaque hint the adapter may use to let the
	// underlying SDK cache its own auth blob; it is never read back by
	// the core.
	Authenticate(ctx context.Context, token string, persistedStatePath string) error

	// ListAll enumerates every secret visible to orgContext.
	ListAll(ctx context.Context, orgContext string) ([]secretmeta.Entry, error)

	// SyncSince returns entries changed after watermark.
	SyncSince(ctx context.Context, watermark time.Time) (SyncResult, error)

	// GetByID fetches a single secret by id, or (zero value, false) if
	// upstream reports it missing.
	GetByID(ctx context.Context, id string) (secretmeta.Entry, bool, error)
}
