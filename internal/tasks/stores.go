package tasks

import (
	"context"
	"iter"

	"github.com/desertthunder/spotifier/internal/models"
)

// ArtistStore is the artist persistence used by the pipeline.
// Implemented by [repositories.ArtistRepository].
type ArtistStore interface {
	// UpsertByCatalogID atomically creates the artist with a placeholder release unless one
	// with catalogID exists. created reports whether this call inserted the row.
	UpsertByCatalogID(ctx context.Context, catalogID, name string) (artist *models.Artist, created bool, err error)
	Get(ctx context.Context, id string) (*models.Artist, error)
	GetMany(ctx context.Context, ids []string) ([]*models.Artist, error)
	// UpdateRelease overwrites the stored release only when rel.ID differs from it.
	UpdateRelease(ctx context.Context, id string, rel models.Release) (changed bool, err error)
	All(ctx context.Context, pageSize int) iter.Seq2[*models.Artist, error]
}

// UserStore is the user persistence used by the pipeline.
// Implemented by [repositories.UserRepository].
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	UpdateCredential(ctx context.Context, userID string, cred models.Credential) error
	// AssignArtist adds the artist to the user's library; repeated calls are no-ops.
	AssignArtist(ctx context.Context, userID, artistID string) (added bool, err error)
	AddPendingForTrackers(ctx context.Context, artistID string) (int64, error)
	ListPending(ctx context.Context) ([]*models.User, error)
	ClearPending(ctx context.Context, userIDs, artistIDs []string) (int64, error)
}

// LibraryReader lists users and their libraries for exports.
// Implemented by [repositories.UserRepository].
type LibraryReader interface {
	List(ctx context.Context) ([]*models.User, error)
	Library(ctx context.Context, userID string) ([]*models.Artist, error)
}
