// Package services contains the adapters between the release pipeline and the outside world.
//
// # Catalog
//
// [Catalog] is the read-only catalog view the pipeline depends on:
//
//   - [Catalog.SavedLibraryPage] returns one page of a user's saved tracks
//   - [Catalog.ArtistDetail] resolves an artist and its most recent album or single
//   - [Catalog.CatalogReleases] builds a [ReleaseSnapshot] from the new-release feed
//
// [SpotifyCatalog] implements it on top of github.com/zmb3/spotify/v2. Every request waits on a
// shared [rate.Limiter] first. Failures are classified into the shared error taxonomy:
//
//   - 401 becomes [shared.ErrAuthExpired], which the library sync recovers from with one refresh
//   - 404 becomes [shared.ErrNotFound]
//   - everything else (network, 429, 5xx) becomes [shared.ErrUpstreamUnavailable]
//
// # Authentication
//
// [OAuthProvider] wraps [oauth2.Config] for the authorization code flow used at login and
// implements [AuthProvider] for refreshing stored credentials.
//
// # Mail
//
// [Mailer] sends one [Message] to a list of recipients. [SMTPMailer] uses an SMTP relay with
// blind-copy fan-out; [LogMailer] logs messages when delivery is disabled.
package services
