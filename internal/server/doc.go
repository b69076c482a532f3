// Package server provides HTTP routing, middleware, and the handlers of the release notifier.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers method-qualified [http.ServeMux] patterns ("POST /sync").
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback used by `user login`.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for a
// catalog credential, and sends the result through a channel.
//
// It only processes one callback to prevent replay attacks.
//
// # Request Layer
//
// `serve` runs [NewAPIRouter]:
//   - POST /sync?user=<id> starts a background library sync (202, 404 unknown user, 409 already running)
//   - GET /sync/status?user=<id> returns the latest sync result
//   - GET /healthz reports liveness and detail queue counters
//   - GET /metrics exposes the Prometheus registry
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
