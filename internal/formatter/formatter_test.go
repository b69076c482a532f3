package formatter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/spotifier/internal/models"
)

func testArtists() []*models.Artist {
	return []*models.Artist{
		{
			ID:        "id-1",
			CatalogID: "cat1",
			Name:      "First",
			Release:   models.Release{ID: "r1", Title: "Debut", ReleaseDate: "2024-01-05", Images: []string{"https://img/1"}},
		},
		{
			ID:        "id-2",
			CatalogID: "cat2",
			Name:      "Second, Jr.",
			Release:   models.PlaceholderRelease(),
		},
	}
}

func TestReleaseEmail(t *testing.T) {
	artists := testArtists()

	t.Run("subject", func(t *testing.T) {
		tc := []struct {
			name    string
			artists []*models.Artist
			want    string
		}{
			{name: "none", artists: nil, want: "New music from artists you follow"},
			{name: "one", artists: artists[:1], want: "New music from First"},
			{name: "many", artists: artists, want: "New music from First and 1 more"},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if got := ReleaseSubject(tt.artists); got != tt.want {
					t.Errorf("ReleaseSubject() = %q, want %q", got, tt.want)
				}
			})
		}
	})

	t.Run("body", func(t *testing.T) {
		body := ReleaseBody(artists)
		for _, want := range []string{"First - Debut (2024-01-05)", "https://open.spotify.com/artist/cat1", "Second, Jr. - " + models.PlaceholderTitle} {
			if !strings.Contains(body, want) {
				t.Errorf("expected body to contain %q, got:\n%s", want, body)
			}
		}
	})

	t.Run("confirmation", func(t *testing.T) {
		body := ConfirmBody("", "ABC123")
		if !strings.Contains(body, "Hi there") || !strings.Contains(body, "ABC123") {
			t.Errorf("unexpected confirmation body:\n%s", body)
		}
	})
}

func TestExporters(t *testing.T) {
	user := &models.User{CatalogUserID: "listener", DisplayName: "Listener"}
	artists := testArtists()

	t.Run("CSV", func(t *testing.T) {
		data, err := LibraryToCSV(artists)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %d", len(lines))
		}
		if lines[0] != "ID,Catalog ID,Name,Release,Release Date" {
			t.Errorf("unexpected header %q", lines[0])
		}
		if !strings.Contains(lines[2], `"Second, Jr."`) {
			t.Errorf("expected quoted name in %q", lines[2])
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		data, _ := LibraryToMarkdown(user, artists)
		md := string(data)
		if !strings.HasPrefix(md, "# Listener\n") {
			t.Errorf("expected heading, got %q", md)
		}
		if !strings.Contains(md, "1. [First](https://open.spotify.com/artist/cat1) - Debut (2024-01-05)") {
			t.Errorf("unexpected markdown:\n%s", md)
		}
	})

	t.Run("Text", func(t *testing.T) {
		data, _ := LibraryToText(&models.User{CatalogUserID: "listener"}, artists)
		text := string(data)
		if !strings.Contains(text, "User: listener") || !strings.Contains(text, "Artists: 2") {
			t.Errorf("unexpected text:\n%s", text)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := LibraryToJSON(artists)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var decoded []map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded) != 2 || decoded[0]["release_id"] != "r1" {
			t.Errorf("unexpected JSON %s", data)
		}
		if _, ok := decoded[1]["release_id"]; ok {
			t.Error("placeholder release id should be omitted")
		}
	})

	t.Run("Export unknown format", func(t *testing.T) {
		if _, err := Export("xml", user, artists); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.csv")
	if err := WriteExport(path, FormatCSV, nil, testArtists()); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "ID,Catalog ID") {
		t.Errorf("unexpected file contents %q", data)
	}
}
