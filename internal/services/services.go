// package services defines the external collaborators of the release pipeline
//
// Spotify catalog, OAuth token refresh, outgoing mail
package services

import (
	"context"

	"github.com/desertthunder/spotifier/internal/models"
)

// MaxPageSize is the largest page the catalog returns for library requests.
const MaxPageSize = 50

// Catalog is the read-only view of the music catalog used by the pipeline.
//
// Implementations map transport failures onto [shared.ErrAuthExpired], [shared.ErrUpstreamUnavailable]
// and [shared.ErrNotFound].
type Catalog interface {
	// SavedLibraryPage returns one page of the user's saved tracks.
	SavedLibraryPage(ctx context.Context, cred models.Credential, offset, limit int) (*LibraryPage, error)

	// ArtistDetail returns full detail, including the most recent release, for a catalog artist.
	ArtistDetail(ctx context.Context, catalogArtistID string) (*ArtistDetail, error)

	// CatalogReleases returns the newest release observed for each catalog artist.
	CatalogReleases(ctx context.Context) (ReleaseSnapshot, error)
}

// ProfileSource resolves the catalog account behind a credential.
type ProfileSource interface {
	UserProfile(ctx context.Context, cred models.Credential) (*Profile, error)
}

// AuthProvider exchanges a refresh token for a new access token.
type AuthProvider interface {
	Refresh(ctx context.Context, cred models.Credential) (models.Credential, error)
}

// Mailer delivers one message to every recipient.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LibraryPage is one page of a user's saved tracks.
type LibraryPage struct {
	Items  []SavedTrack
	Total  int
	Offset int
}

// SavedTrack is a track in a user's saved library.
type SavedTrack struct {
	ID               string
	Name             string
	Artists          []ArtistRef
	AvailableMarkets []string
}

// PrimaryArtist returns the first credited artist, ignoring features.
func (t SavedTrack) PrimaryArtist() (ArtistRef, bool) {
	if len(t.Artists) == 0 || t.Artists[0].ID == "" {
		return ArtistRef{}, false
	}
	return t.Artists[0], true
}

// Available reports whether the track is playable in at least one market.
func (t SavedTrack) Available() bool {
	return len(t.AvailableMarkets) > 0
}

// ArtistRef identifies a catalog artist.
type ArtistRef struct {
	ID   string
	Name string
}

// ArtistDetail is the resolved detail for a catalog artist.
type ArtistDetail struct {
	ID            string
	Name          string
	Genres        []string
	Images        []string
	RecentRelease models.Release
}

// ReleaseSnapshot maps catalog artist ids to the newest release observed for them.
type ReleaseSnapshot map[string]models.Release

// Profile is the catalog account of an authenticated user.
type Profile struct {
	ID          string
	DisplayName string
	Email       string
}

// Message is a release notification or confirmation mail.
//
// Artists is used by template-based renderers; Body is sent as is when set.
type Message struct {
	Recipients []string
	Subject    string
	Body       string
	Artists    []*models.Artist
}
