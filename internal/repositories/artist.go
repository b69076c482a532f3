package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/shared"
)

const artistColumns = `id, catalog_id, name, release_id, release_title, release_date, release_images, created_at, updated_at`

// ArtistRepository persists [models.Artist] records keyed by their catalog id.
type ArtistRepository struct {
	db *shared.Database
}

// NewArtistRepository creates a new [ArtistRepository] with the given database connection
func NewArtistRepository(db *shared.Database) *ArtistRepository {
	return &ArtistRepository{db: db}
}

// UpsertByCatalogID returns the artist with catalogID, creating it with the placeholder release if absent.
//
// Concurrent calls for the same catalog id produce exactly one row; created is true only for the
// call whose insert won.
func (r *ArtistRepository) UpsertByCatalogID(ctx context.Context, catalogID, name string) (*models.Artist, bool, error) {
	candidate := &models.Artist{CatalogID: catalogID, Name: name}
	if err := candidate.Validate(); err != nil {
		return nil, false, err
	}

	query := r.db.Rebind(`
		INSERT INTO artists (id, catalog_id, name, release_id, release_title, release_date, release_images, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, '', '[]', ?, ?)
		ON CONFLICT (catalog_id) DO NOTHING
	`)

	var created bool
	err := withConflictRetry(ctx, func() error {
		ts := now()
		result, err := r.db.ExecContext(ctx, query, shared.GenerateID(), catalogID, name, models.PlaceholderTitle, ts, ts)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert artist %s: %w", catalogID, err)
	}

	artist, err := r.GetByCatalogID(ctx, catalogID)
	if err != nil {
		return nil, false, err
	}
	return artist, created, nil
}

// Get retrieves an artist by ID
func (r *ArtistRepository) Get(ctx context.Context, id string) (*models.Artist, error) {
	query := r.db.Rebind(`SELECT ` + artistColumns + ` FROM artists WHERE id = ?`)
	artist, err := scanArtist(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrArtistNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query artist: %w", err)
	}
	return artist, nil
}

// GetByCatalogID retrieves an artist by its catalog id
func (r *ArtistRepository) GetByCatalogID(ctx context.Context, catalogID string) (*models.Artist, error) {
	query := r.db.Rebind(`SELECT ` + artistColumns + ` FROM artists WHERE catalog_id = ?`)
	artist, err := scanArtist(r.db.QueryRowContext(ctx, query, catalogID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: catalog id %s", shared.ErrArtistNotFound, catalogID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query artist: %w", err)
	}
	return artist, nil
}

// GetMany retrieves the artists with the given ids, ordered by name. Unknown ids are skipped.
func (r *ArtistRepository) GetMany(ctx context.Context, ids []string) ([]*models.Artist, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := r.db.Rebind(`SELECT ` + artistColumns + ` FROM artists WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY name, id`)
	return r.queryArtists(ctx, query, args(ids)...)
}

// UpdateRelease stores rel as the artist's release when its id differs from the stored one.
//
// The comparison happens in the UPDATE itself, so changed is false and nothing is written
// when the stored release already has rel.ID.
func (r *ArtistRepository) UpdateRelease(ctx context.Context, id string, rel models.Release) (bool, error) {
	if rel.IsPlaceholder() {
		return false, fmt.Errorf("%w: release id is required", shared.ErrValidation)
	}

	images, err := json.Marshal(nonNil(rel.Images))
	if err != nil {
		return false, fmt.Errorf("failed to encode release images: %w", err)
	}

	query := r.db.Rebind(`
		UPDATE artists
		SET release_id = ?, release_title = ?, release_date = ?, release_images = ?, updated_at = ?
		WHERE id = ? AND release_id <> ?
	`)

	var n int64
	err = withConflictRetry(ctx, func() error {
		result, err := r.db.ExecContext(ctx, query, rel.ID, rel.Title, rel.ReleaseDate, string(images), now(), id, rel.ID)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to update release for artist %s: %w", id, err)
	}
	return n == 1, nil
}

// ListPage returns up to limit artists with an id greater than afterID, in id order.
func (r *ArtistRepository) ListPage(ctx context.Context, afterID string, limit int) ([]*models.Artist, error) {
	query := r.db.Rebind(`SELECT ` + artistColumns + ` FROM artists WHERE id > ? ORDER BY id LIMIT ?`)
	return r.queryArtists(ctx, query, afterID, limit)
}

// All yields every stored artist, reading pageSize rows at a time.
//
// Each page is fully read before it is yielded, so callers may write to the store while iterating.
// Iteration stops after the first error.
func (r *ArtistRepository) All(ctx context.Context, pageSize int) iter.Seq2[*models.Artist, error] {
	return func(yield func(*models.Artist, error) bool) {
		after := ""
		for {
			page, err := r.ListPage(ctx, after, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, a := range page {
				if !yield(a, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

// TrackingUserIDs returns the ids of users whose library contains the artist.
func (r *ArtistRepository) TrackingUserIDs(ctx context.Context, artistID string) ([]string, error) {
	query := r.db.Rebind(`SELECT user_id FROM user_artists WHERE artist_id = ? ORDER BY user_id`)
	return queryStrings(ctx, r.db, query, artistID)
}

// Count returns the number of stored artists.
func (r *ArtistRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artists`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count artists: %w", err)
	}
	return n, nil
}

func (r *ArtistRepository) queryArtists(ctx context.Context, query string, params ...any) ([]*models.Artist, error) {
	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []*models.Artist
	for rows.Next() {
		artist, err := scanArtist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		artists = append(artists, artist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artists: %w", err)
	}
	return artists, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtist(s scanner) (*models.Artist, error) {
	var (
		artist    models.Artist
		images    string
		createdAt time.Time
		updatedAt time.Time
	)

	err := s.Scan(
		&artist.ID, &artist.CatalogID, &artist.Name,
		&artist.Release.ID, &artist.Release.Title, &artist.Release.ReleaseDate, &images,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if images != "" {
		if err := json.Unmarshal([]byte(images), &artist.Release.Images); err != nil {
			return nil, fmt.Errorf("failed to decode release images: %w", err)
		}
	}
	artist.CreatedAt = createdAt
	artist.UpdatedAt = updatedAt
	return &artist, nil
}

func queryStrings(ctx context.Context, db *shared.Database, query string, params ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ids: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
