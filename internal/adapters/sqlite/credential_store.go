package sqlite

import (
	"context"
	"time"

	"github.com/fr0stylo/integrationgw/internal/credentials"
	"github.com/fr0stylo/integrationgw/internal/db/queries"
)

type credentialDatabase interface {
	UpsertPlatformCredential(ctx context.Context, arg queries.UpsertPlatformCredentialParams) error
	DeletePlatformCredential(ctx context.Context, platformID string) error
	ListPlatformCredentials(ctx context.Context) ([]queries.PlatformCredential, error)
}

// CredentialPersister stores sealed credential records.
type CredentialPersister struct {
	db  credentialDatabase
	now func() time.Time
}

// NewCredentialPersister constructs a CredentialPersister over database.
func NewCredentialPersister(database credentialDatabase) *CredentialPersister {
	return &CredentialPersister{db: database, now: time.Now}
}

// SaveCredentials replaces the sealed record of platformID.
func (p *CredentialPersister) SaveCredentials(ctx context.Context, platformID string, sealed []byte) error {
	return p.db.UpsertPlatformCredential(ctx, queries.UpsertPlatformCredentialParams{
		PlatformID: platformID,
		Sealed:     sealed,
		UpdatedAt:  formatTime(p.now()),
	})
}

// DeleteCredentials removes the sealed record of platformID.
func (p *CredentialPersister) DeleteCredentials(ctx context.Context, platformID string) error {
	return p.db.DeletePlatformCredential(ctx, platformID)
}

// LoadCredentials returns every sealed record keyed by platform id.
func (p *CredentialPersister) LoadCredentials(ctx context.Context) (map[string][]byte, error) {
	rows, err := p.db.ListPlatformCredentials(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(rows))
	for _, row := range rows {
		out[row.PlatformID] = row.Sealed
	}
	return out, nil
}

var _ credentials.Persister = (*CredentialPersister)(nil)
