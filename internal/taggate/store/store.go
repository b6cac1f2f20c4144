package store

import (
	"context"
	"errors"

	"github.com/taggate-io/taggate/server/internal/taggate/types"
)

// ErrNotFound is returned by FindByID when no credential exists for the id.
var ErrNotFound = errors.New("credential not found")

// CredentialStore is the durable mapping from tag id to activation state.
type CredentialStore interface {
	// FindByID returns the credential for id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (types.Credential, error)

	// UpsertActive creates the credential if it does not exist and sets
	// its active state.
	UpsertActive(ctx context.Context, id string, active bool) error

	// CountEnrolled returns the number of credentials currently enrolled.
	CountEnrolled(ctx context.Context) (int, error)

	// DeactivateAll forces every credential inactive in one batch
	// mutation. Returns the number of credentials that changed state.
	DeactivateAll(ctx context.Context) (int64, error)

	// ListAll returns every credential, oldest enrollment first.
	ListAll(ctx context.Context) ([]types.Credential, error)
}

// AuditStore persists scan outcomes as an append-only audit log.
type AuditStore interface {
	// Append writes one audit record and returns it with its assigned
	// id and timestamp filled in.
	Append(ctx context.Context, rec types.AuditRecord) (types.AuditRecord, error)

	// ListRecent returns up to n records, newest first. Records with the
	// same timestamp keep insertion order.
	ListRecent(ctx context.Context, n int) ([]types.AuditRecord, error)
}
