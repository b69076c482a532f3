// package formatter renders release emails and exports a user's followed artists to CSV, Markdown, JSON or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/spotifier/internal/models"
)

const artistURL = "https://open.spotify.com/artist/"

// Format names accepted by [Export].
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// ReleaseSubject returns the subject line for a release notification covering the given artists.
func ReleaseSubject(artists []*models.Artist) string {
	switch len(artists) {
	case 0:
		return "New music from artists you follow"
	case 1:
		return fmt.Sprintf("New music from %s", artists[0].Name)
	default:
		return fmt.Sprintf("New music from %s and %d more", artists[0].Name, len(artists)-1)
	}
}

// ReleaseBody renders the plain text body of a release notification.
func ReleaseBody(artists []*models.Artist) string {
	var buf bytes.Buffer

	buf.WriteString("Artists in your library have released new music:\n\n")
	for _, a := range artists {
		rel := a.Release
		buf.WriteString(fmt.Sprintf("%s - %s", a.Name, rel.Title))
		if rel.ReleaseDate != "" {
			buf.WriteString(fmt.Sprintf(" (%s)", rel.ReleaseDate))
		}
		buf.WriteString("\n")
		buf.WriteString(fmt.Sprintf("  %s%s\n", artistURL, a.CatalogID))
	}
	buf.WriteString("\nYou are receiving this because you confirmed this address for release updates.\n")

	return buf.String()
}

// ConfirmSubject is the subject line of the email address confirmation message.
const ConfirmSubject = "Confirm your email for release updates"

// ConfirmBody renders the confirmation message containing code.
func ConfirmBody(displayName, code string) string {
	name := displayName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s,\n\nYour confirmation code is: %s\n\nRun `spotifier user confirm --code %s` to start receiving release updates.\n", name, code, code)
}

// LibraryToCSV converts artists to CSV format with columns: ID, Catalog ID, Name, Release, Release Date
func LibraryToCSV(artists []*models.Artist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Catalog ID", "Name", "Release", "Release Date"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, a := range artists {
		record := []string{a.ID, a.CatalogID, a.Name, a.Release.Title, a.Release.ReleaseDate}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// LibraryToMarkdown converts artists to a Markdown list headed by the user's name
func LibraryToMarkdown(user *models.User, artists []*models.Artist) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", displayName(user)))
	buf.WriteString(fmt.Sprintf("**Artists**: %d\n\n", len(artists)))

	buf.WriteString("## Artists\n\n")
	for i, a := range artists {
		release := a.Release.Title
		if !a.Release.IsPlaceholder() && a.Release.ReleaseDate != "" {
			release = fmt.Sprintf("%s (%s)", release, a.Release.ReleaseDate)
		}
		buf.WriteString(fmt.Sprintf("%d. [%s](%s%s) - %s\n", i+1, a.Name, artistURL, a.CatalogID, release))
	}

	return buf.Bytes(), nil
}

// LibraryToText converts artists to plain text format
func LibraryToText(user *models.User, artists []*models.Artist) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("User: %s\n", displayName(user)))
	buf.WriteString(fmt.Sprintf("Artists: %d\n\n", len(artists)))

	for i, a := range artists {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, a.Name, a.Release.Title))
	}

	return buf.Bytes(), nil
}

type artistJSON struct {
	ID          string   `json:"id"`
	CatalogID   string   `json:"catalog_id"`
	Name        string   `json:"name"`
	ReleaseID   string   `json:"release_id,omitempty"`
	Release     string   `json:"release"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// LibraryToJSON converts artists to indented JSON
func LibraryToJSON(artists []*models.Artist) ([]byte, error) {
	out := make([]artistJSON, 0, len(artists))
	for _, a := range artists {
		out = append(out, artistJSON{
			ID:          a.ID,
			CatalogID:   a.CatalogID,
			Name:        a.Name,
			ReleaseID:   a.Release.ID,
			Release:     a.Release.Title,
			ReleaseDate: a.Release.ReleaseDate,
			Images:      a.Release.Images,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// Export renders artists in the named format.
func Export(format string, user *models.User, artists []*models.Artist) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatText, "txt":
		return LibraryToText(user, artists)
	case FormatCSV:
		return LibraryToCSV(artists)
	case FormatMarkdown, "md":
		return LibraryToMarkdown(user, artists)
	case FormatJSON:
		return LibraryToJSON(artists)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// WriteExport renders artists in the named format and writes them to path.
func WriteExport(path, format string, user *models.User, artists []*models.Artist) error {
	data, err := Export(format, user, artists)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func displayName(user *models.User) string {
	if user == nil {
		return ""
	}
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.CatalogUserID
}
