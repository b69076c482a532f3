package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/spotifier/internal/models"
)

var (
	_ list.Item = userItem{}
	_ list.Item = artistItem{}
)

// userItem wraps [models.User] to implement [list.Item].
type userItem struct {
	user *models.User
}

func (i userItem) FilterValue() string { return i.Title() }
func (i userItem) Title() string {
	if i.user.DisplayName != "" {
		return i.user.DisplayName
	}
	return i.user.CatalogUserID
}
func (i userItem) Description() string {
	switch {
	case i.user.Email == "":
		return "no email"
	case !i.user.EmailConfirmed:
		return fmt.Sprintf("%s (unconfirmed)", i.user.Email)
	default:
		return i.user.Email
	}
}

// artistItem wraps [models.Artist] to implement [list.Item].
type artistItem struct {
	artist *models.Artist
}

func (i artistItem) FilterValue() string { return i.artist.Name }
func (i artistItem) Title() string       { return i.artist.Name }
func (i artistItem) Description() string {
	rel := i.artist.Release
	if rel.IsPlaceholder() {
		return "release not resolved yet"
	}
	if rel.ReleaseDate != "" {
		return fmt.Sprintf("%s • %s", rel.Title, rel.ReleaseDate)
	}
	return rel.Title
}
