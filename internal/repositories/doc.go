// Package repositories implements SQL persistence for users, artists and their relations.
//
// Queries are written once with `?` placeholders and rebound for postgres by [shared.Database.Rebind],
// so the same repositories run on SQLite and PostgreSQL.
//
// Key Implementations:
//   - [ArtistRepository] : artists keyed by catalog id, with conditional release updates
//   - [UserRepository] : users, credentials, library membership, pending release flags and email state
//
// Every write is a single statement. Creation uses INSERT ... ON CONFLICT so concurrent first
// discoveries of the same artist or user collapse into one row, and membership rows make artist
// assignment idempotent. Transient conflicts (busy database, lost insert race, serialization failure)
// are retried inside the repository and only surface as [shared.ErrStoreConflict] after the retry
// budget is spent.
package repositories
