package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/shared"
)

func writeSpotifyError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"status":%d,"message":%q}}`, status, msg)
}

// newTestCatalog serves a small fake of the Spotify Web API.
func newTestCatalog(t *testing.T, mux *http.ServeMux) *SpotifyCatalog {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	catalog, err := NewSpotifyCatalog(
		shared.SpotifyConfig{},
		shared.CatalogConfig{RequestsPerSecond: 1000, Burst: 10, NewReleasePages: 3},
		log.New(io.Discard),
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithAppClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	return catalog
}

func TestSpotifyCatalog(t *testing.T) {
	ctx := context.Background()
	cred := models.Credential{AccessToken: "valid"}

	t.Run("NewSpotifyCatalog requires credentials", func(t *testing.T) {
		_, err := NewSpotifyCatalog(shared.SpotifyConfig{}, shared.CatalogConfig{}, log.New(io.Discard))
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("SavedLibraryPage", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me/tracks", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer valid" {
				writeSpotifyError(w, http.StatusUnauthorized, "The access token expired")
				return
			}
			if got := r.URL.Query().Get("limit"); got != "50" {
				t.Errorf("expected limit clamped to 50, got %s", got)
			}
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			fmt.Fprintf(w, `{"items":[
				{"added_at":"2024-01-01T00:00:00Z","track":{"id":"t1","name":"One","artists":[{"id":"a1","name":"First"},{"id":"a2","name":"Feature"}],"available_markets":["US"]}},
				{"added_at":"2024-01-01T00:00:00Z","track":{"id":"t2","name":"Two","artists":[],"available_markets":[]}}
			],"limit":50,"offset":%d,"total":120}`, offset)
		})
		catalog := newTestCatalog(t, mux)

		page, err := catalog.SavedLibraryPage(ctx, cred, 50, 500)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if page.Total != 120 || page.Offset != 50 || len(page.Items) != 2 {
			t.Fatalf("unexpected page %+v", page)
		}

		primary, ok := page.Items[0].PrimaryArtist()
		if !ok || primary.ID != "a1" || primary.Name != "First" {
			t.Errorf("unexpected primary artist %+v", primary)
		}
		if !page.Items[0].Available() {
			t.Error("expected first track to be available")
		}
		if _, ok := page.Items[1].PrimaryArtist(); ok {
			t.Error("expected no primary artist for second track")
		}
		if page.Items[1].Available() {
			t.Error("expected second track to be unavailable")
		}

		t.Run("expired token", func(t *testing.T) {
			_, err := catalog.SavedLibraryPage(ctx, models.Credential{AccessToken: "stale"}, 0, 50)
			if !errors.Is(err, shared.ErrAuthExpired) {
				t.Errorf("expected ErrAuthExpired, got %v", err)
			}
		})

		t.Run("missing token", func(t *testing.T) {
			_, err := catalog.SavedLibraryPage(ctx, models.Credential{}, 0, 50)
			if !errors.Is(err, shared.ErrAuthExpired) {
				t.Errorf("expected ErrAuthExpired, got %v", err)
			}
		})
	})

	t.Run("SavedLibraryPage upstream failure", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me/tracks", func(w http.ResponseWriter, r *http.Request) {
			writeSpotifyError(w, http.StatusBadGateway, "bad gateway")
		})
		catalog := newTestCatalog(t, mux)

		_, err := catalog.SavedLibraryPage(ctx, cred, 0, 50)
		if !errors.Is(err, shared.ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("ArtistDetail", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/artists/a1", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id":"a1","name":"First","genres":["indie"],"images":[{"url":"https://img/a1","height":640,"width":640}]}`)
		})
		mux.HandleFunc("/artists/a1/albums", func(w http.ResponseWriter, r *http.Request) {
			if groups := r.URL.Query().Get("include_groups"); !strings.Contains(groups, "album") || !strings.Contains(groups, "single") {
				t.Errorf("expected album and single groups, got %q", groups)
			}
			fmt.Fprint(w, `{"items":[
				{"id":"old","name":"Old","release_date":"2019-05-01","images":[]},
				{"id":"new","name":"New","release_date":"2024-02-10","images":[{"url":"https://img/new"}]},
				{"id":"mid","name":"Mid","release_date":"2021","images":[]}
			],"limit":50,"offset":0,"total":3}`)
		})
		mux.HandleFunc("/artists/quiet", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id":"quiet","name":"Quiet"}`)
		})
		mux.HandleFunc("/artists/quiet/albums", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"items":[],"limit":50,"offset":0,"total":0}`)
		})
		mux.HandleFunc("/artists/missing", func(w http.ResponseWriter, r *http.Request) {
			writeSpotifyError(w, http.StatusNotFound, "non existing id")
		})
		catalog := newTestCatalog(t, mux)

		detail, err := catalog.ArtistDetail(ctx, "a1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if detail.Name != "First" || len(detail.Genres) != 1 || len(detail.Images) != 1 {
			t.Errorf("unexpected detail %+v", detail)
		}
		rel := detail.RecentRelease
		if rel.ID != "new" || rel.Title != "New" || rel.ReleaseDate != "2024-02-10" || len(rel.Images) != 1 {
			t.Errorf("expected newest release, got %+v", rel)
		}

		quiet, err := catalog.ArtistDetail(ctx, "quiet")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !quiet.RecentRelease.IsPlaceholder() {
			t.Errorf("expected placeholder release, got %+v", quiet.RecentRelease)
		}

		if _, err := catalog.ArtistDetail(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := catalog.ArtistDetail(ctx, ""); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("CatalogReleases", func(t *testing.T) {
		calls := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/browse/new-releases", func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprint(w, `{"albums":{"items":[
				{"id":"r1","name":"Single","release_date":"2024-03-01","artists":[{"id":"a1","name":"First"}],"images":[]},
				{"id":"r0","name":"Older","release_date":"2024-02-01","artists":[{"id":"a1","name":"First"}],"images":[]},
				{"id":"r2","name":"Album","release_date":"2024-03-02","artists":[{"id":"a2","name":"Second"},{"id":"a3","name":"Guest"}],"images":[]},
				{"id":"r3","name":"Orphan","release_date":"2024-03-02","artists":[],"images":[]}
			],"limit":50,"offset":0,"total":4}}`)
		})
		catalog := newTestCatalog(t, mux)

		snapshot, err := catalog.CatalogReleases(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected a single short page request, got %d", calls)
		}
		if len(snapshot) != 2 {
			t.Fatalf("expected 2 artists in snapshot, got %d: %v", len(snapshot), snapshot)
		}
		if snapshot["a1"].ID != "r1" {
			t.Errorf("expected newest release r1 for a1, got %+v", snapshot["a1"])
		}
		if snapshot["a2"].ID != "r2" {
			t.Errorf("expected r2 for primary artist a2, got %+v", snapshot["a2"])
		}
		if _, ok := snapshot["a3"]; ok {
			t.Error("featured artists should not be in the snapshot")
		}
	})

	t.Run("UserProfile", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id":"listener","display_name":"Listener","email":"listener@example.com"}`)
		})
		catalog := newTestCatalog(t, mux)

		profile, err := catalog.UserProfile(ctx, cred)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if profile.ID != "listener" || profile.DisplayName != "Listener" || profile.Email != "listener@example.com" {
			t.Errorf("unexpected profile %+v", profile)
		}
	})
}
