// Package models defines domain entities for the release notification service.
//
// Persistent entities:
//   - [User] : a catalog account with its [Credential], email address and confirmation state
//   - [Artist] : a catalog artist with its most recent [Release]
//
// Membership between users and artists is stored as one row per pair, so [User.SavedArtistIDs]
// and [Artist.TrackingUserIDs] are two views of the same relation.
//
// Derived values:
//   - [PendingGroup] : users that share an identical set of pending-release artists
//
// A [Release] with an empty ID is the placeholder stored before artist detail is resolved.
package models
