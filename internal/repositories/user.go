package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/shared"
)

const userColumns = `id, catalog_user_id, display_name, access_token, refresh_token, token_expiry,
	email, email_confirmed, confirm_code, created_at, updated_at`

// UserRepository persists [models.User] records, their artist memberships and pending release flags.
type UserRepository struct {
	db *shared.Database
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *shared.Database) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertByCatalogUserID creates the user on first login or refreshes the display name and credential
// of an existing one. An empty refresh token never replaces a stored one.
func (r *UserRepository) UpsertByCatalogUserID(ctx context.Context, user *models.User) (*models.User, bool, error) {
	if err := user.Validate(); err != nil {
		return nil, false, err
	}

	insert := r.db.Rebind(`
		INSERT INTO users (id, catalog_user_id, display_name, access_token, refresh_token, token_expiry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (catalog_user_id) DO NOTHING
	`)
	update := r.db.Rebind(`
		UPDATE users
		SET display_name = ?, access_token = ?,
			refresh_token = CASE WHEN ? <> '' THEN ? ELSE refresh_token END,
			token_expiry = ?, updated_at = ?
		WHERE catalog_user_id = ?
	`)

	cred := user.Credential
	var created bool
	err := withConflictRetry(ctx, func() error {
		ts := now()
		result, err := r.db.ExecContext(ctx, insert,
			shared.GenerateID(), user.CatalogUserID, user.DisplayName,
			cred.AccessToken, cred.RefreshToken, nullTime(cred.Expiry), ts, ts)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if created = n == 1; created {
			return nil
		}

		_, err = r.db.ExecContext(ctx, update,
			user.DisplayName, cred.AccessToken, cred.RefreshToken, cred.RefreshToken,
			nullTime(cred.Expiry), ts, user.CatalogUserID)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user %s: %w", user.CatalogUserID, err)
	}

	stored, err := r.GetByCatalogUserID(ctx, user.CatalogUserID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// Get retrieves a user by ID with its saved and pending artist sets populated.
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := r.getBy(ctx, "id", id)
	if err != nil {
		return nil, err
	}
	if user.SavedArtistIDs, err = r.SavedArtistIDs(ctx, user.ID); err != nil {
		return nil, err
	}
	if user.PendingReleaseArtistIDs, err = r.PendingArtistIDs(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByCatalogUserID retrieves a user by catalog account id. Artist sets are not populated.
func (r *UserRepository) GetByCatalogUserID(ctx context.Context, catalogUserID string) (*models.User, error) {
	return r.getBy(ctx, "catalog_user_id", catalogUserID)
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`)
	user, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// List returns all users ordered by display name. Artist sets are not populated.
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY display_name, id`
	return r.queryUsers(ctx, query)
}

// UpdateCredential persists a refreshed credential for the user.
func (r *UserRepository) UpdateCredential(ctx context.Context, userID string, cred models.Credential) error {
	query := r.db.Rebind(`
		UPDATE users
		SET access_token = ?, refresh_token = CASE WHEN ? <> '' THEN ? ELSE refresh_token END,
			token_expiry = ?, updated_at = ?
		WHERE id = ?
	`)
	return r.execOne(ctx, "update credential", userID, query,
		cred.AccessToken, cred.RefreshToken, cred.RefreshToken, nullTime(cred.Expiry), now(), userID)
}

// AssignArtist records that the artist is in the user's library.
//
// The pair is one row, so the user's saved set and the artist's tracker set change together.
// Repeating the call is a no-op; added reports whether a row was written.
func (r *UserRepository) AssignArtist(ctx context.Context, userID, artistID string) (bool, error) {
	query := r.db.Rebind(`
		INSERT INTO user_artists (user_id, artist_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, artist_id) DO NOTHING
	`)

	var n int64
	err := withConflictRetry(ctx, func() error {
		result, err := r.db.ExecContext(ctx, query, userID, artistID, now())
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to assign artist %s to user %s: %w", artistID, userID, err)
	}
	return n == 1, nil
}

// SavedArtistIDs returns the ids of the artists in the user's library.
func (r *UserRepository) SavedArtistIDs(ctx context.Context, userID string) ([]string, error) {
	query := r.db.Rebind(`SELECT artist_id FROM user_artists WHERE user_id = ? ORDER BY artist_id`)
	return queryStrings(ctx, r.db, query, userID)
}

// Library returns the artists in the user's library ordered by name.
func (r *UserRepository) Library(ctx context.Context, userID string) ([]*models.Artist, error) {
	query := r.db.Rebind(`
		SELECT a.id, a.catalog_id, a.name, a.release_id, a.release_title, a.release_date, a.release_images, a.created_at, a.updated_at
		FROM artists a
		JOIN user_artists ua ON ua.artist_id = a.id
		WHERE ua.user_id = ?
		ORDER BY a.name, a.id
	`)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query library: %w", err)
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
		return nil, fmt.Errorf("error iterating library: %w", err)
	}
	return artists, nil
}

// AddPendingForTrackers flags the artist as pending for every user tracking it and returns
// the number of new flags. Already pending pairs are left as they are.
func (r *UserRepository) AddPendingForTrackers(ctx context.Context, artistID string) (int64, error) {
	query := r.db.Rebind(`
		INSERT INTO pending_releases (user_id, artist_id, created_at)
		SELECT user_id, artist_id, ? FROM user_artists WHERE artist_id = ?
		ON CONFLICT (user_id, artist_id) DO NOTHING
	`)

	var n int64
	err := withConflictRetry(ctx, func() error {
		result, err := r.db.ExecContext(ctx, query, now(), artistID)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to flag pending release for artist %s: %w", artistID, err)
	}
	return n, nil
}

// PendingArtistIDs returns the ids of the artists flagged as pending for the user.
func (r *UserRepository) PendingArtistIDs(ctx context.Context, userID string) ([]string, error) {
	query := r.db.Rebind(`SELECT artist_id FROM pending_releases WHERE user_id = ? ORDER BY artist_id`)
	return queryStrings(ctx, r.db, query, userID)
}

// ListPending returns every user with at least one pending release, with
// PendingReleaseArtistIDs populated.
func (r *UserRepository) ListPending(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, artist_id FROM pending_releases ORDER BY user_id, artist_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending releases: %w", err)
	}

	var order []string
	pending := make(map[string][]string)
	for rows.Next() {
		var userID, artistID string
		if err := rows.Scan(&userID, &artistID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pending release: %w", err)
		}
		if _, ok := pending[userID]; !ok {
			order = append(order, userID)
		}
		pending[userID] = append(pending[userID], artistID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating pending releases: %w", err)
	}
	rows.Close()

	users := make([]*models.User, 0, len(order))
	for _, id := range order {
		user, err := r.getBy(ctx, "id", id)
		if err != nil {
			return nil, err
		}
		user.PendingReleaseArtistIDs = pending[id]
		users = append(users, user)
	}
	return users, nil
}

// ClearPending removes the pending flags for every (user, artist) pair in userIDs x artistIDs.
// Flags for other artists are kept.
func (r *UserRepository) ClearPending(ctx context.Context, userIDs, artistIDs []string) (int64, error) {
	if len(userIDs) == 0 || len(artistIDs) == 0 {
		return 0, nil
	}

	query := r.db.Rebind(`
		DELETE FROM pending_releases
		WHERE user_id IN (` + placeholders(len(userIDs)) + `)
		AND artist_id IN (` + placeholders(len(artistIDs)) + `)
	`)

	var n int64
	err := withConflictRetry(ctx, func() error {
		result, err := r.db.ExecContext(ctx, query, args(userIDs, artistIDs)...)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear pending releases: %w", err)
	}
	return n, nil
}

// SetEmail stores an unconfirmed email address and the code that confirms it.
func (r *UserRepository) SetEmail(ctx context.Context, userID, email, code string) error {
	candidate := models.User{CatalogUserID: userID, Email: email}
	if email == "" {
		return fmt.Errorf("%w: email is required", shared.ErrValidation)
	}
	if err := candidate.Validate(); err != nil {
		return err
	}

	query := r.db.Rebind(`
		UPDATE users SET email = ?, email_confirmed = ?, confirm_code = ?, updated_at = ? WHERE id = ?
	`)
	return r.execOne(ctx, "set email", userID, query, email, false, code, now(), userID)
}

// ConfirmEmail marks the user's email as confirmed when code matches the stored one.
func (r *UserRepository) ConfirmEmail(ctx context.Context, userID, code string) error {
	user, err := r.getBy(ctx, "id", userID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return shared.ErrNoEmail
	}
	if user.ConfirmCode == "" || user.ConfirmCode != code {
		return shared.ErrConfirmCodeMismatch
	}

	query := r.db.Rebind(`
		UPDATE users SET email_confirmed = ?, confirm_code = '', updated_at = ? WHERE id = ?
	`)
	return r.execOne(ctx, "confirm email", userID, query, true, now(), userID)
}

// RemoveEmail clears the user's email address and confirmation state.
func (r *UserRepository) RemoveEmail(ctx context.Context, userID string) error {
	query := r.db.Rebind(`
		UPDATE users SET email = NULL, email_confirmed = ?, confirm_code = '', updated_at = ? WHERE id = ?
	`)
	return r.execOne(ctx, "remove email", userID, query, false, now(), userID)
}

// execOne runs a single-row update and maps zero affected rows to [shared.ErrUserNotFound].
func (r *UserRepository) execOne(ctx context.Context, op, userID, query string, params ...any) error {
	var n int64
	err := withConflictRetry(ctx, func() error {
		result, err := r.db.ExecContext(ctx, query, params...)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, userID)
	}
	return nil
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, params ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanUser(s scanner) (*models.User, error) {
	var (
		user      models.User
		expiry    sql.NullTime
		email     sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)

	err := s.Scan(
		&user.ID, &user.CatalogUserID, &user.DisplayName,
		&user.Credential.AccessToken, &user.Credential.RefreshToken, &expiry,
		&email, &user.EmailConfirmed, &user.ConfirmCode, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if expiry.Valid {
		user.Credential.Expiry = expiry.Time
	}
	user.Email = email.String
	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	return &user, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
