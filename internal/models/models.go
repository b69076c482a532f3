// package models defines the data model for the release notification service
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/spotifier/internal/shared"
)

// PlaceholderTitle is the title given to an artist's release before its detail is resolved.
const PlaceholderTitle = "recent release information pending"

// Model is implemented by every persistent entity.
type Model interface {
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Credential holds a user's catalog access and refresh tokens.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Expired reports whether the access token is missing or past its expiry at now.
// A zero expiry is treated as non-expiring.
func (c Credential) Expired(now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// User is a catalog account that follows the artists found in its saved library.
type User struct {
	ID             string
	CatalogUserID  string
	DisplayName    string
	Credential     Credential
	Email          string
	EmailConfirmed bool
	ConfirmCode    string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Populated by the store when requested.
	SavedArtistIDs          []string
	PendingReleaseArtistIDs []string
}

// Validate implements [Model]
func (u *User) Validate() error {
	if strings.TrimSpace(u.CatalogUserID) == "" {
		return fmt.Errorf("%w: catalog user id is required", shared.ErrValidation)
	}
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: invalid email %q", shared.ErrValidation, u.Email)
	}
	return nil
}

// Notifiable reports whether the user can receive release mail.
func (u *User) Notifiable() bool {
	return u.Email != "" && u.EmailConfirmed
}

// Release is the most recent album or single observed for an artist.
type Release struct {
	ID          string
	Title       string
	ReleaseDate string
	Images      []string
}

// PlaceholderRelease returns the release stored for artists whose detail is not resolved yet.
func PlaceholderRelease() Release {
	return Release{Title: PlaceholderTitle}
}

// IsPlaceholder reports whether r is the unresolved placeholder.
func (r Release) IsPlaceholder() bool {
	return r.ID == ""
}

// Artist is a catalog artist tracked by one or more users.
type Artist struct {
	ID        string
	CatalogID string
	Name      string
	Release   Release
	CreatedAt time.Time
	UpdatedAt time.Time

	// Populated by the store when requested.
	TrackingUserIDs []string
}

// Validate implements [Model]
func (a *Artist) Validate() error {
	if strings.TrimSpace(a.CatalogID) == "" {
		return fmt.Errorf("%w: catalog artist id is required", shared.ErrValidation)
	}
	return nil
}

// PendingGroup is a set of users whose pending-release artist sets are identical.
// Key is the canonical form of ArtistIDs.
type PendingGroup struct {
	Key       string
	ArtistIDs []string
	Users     []*User
}

// Recipients returns the email addresses of the group's users.
func (g PendingGroup) Recipients() []string {
	out := make([]string, 0, len(g.Users))
	for _, u := range g.Users {
		out = append(out, u.Email)
	}
	return out
}

// UserIDs returns the ids of the group's users.
func (g PendingGroup) UserIDs() []string {
	out := make([]string, 0, len(g.Users))
	for _, u := range g.Users {
		out = append(out, u.ID)
	}
	return out
}
