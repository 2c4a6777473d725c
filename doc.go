// Package supa is a Go client for the Supabase platform.
//
// # Services
//
// A [Client] bundles four service clients derived from one project URL and
// API key:
//
//   - [Client.Auth] signs users up and in against the auth service and
//     manages their sessions.
//   - [Client.DB] queries PostgreSQL tables through the PostgREST interface,
//     with a chainable query builder.
//   - [Client.Realtime] subscribes to live INSERT/UPDATE/DELETE notifications
//     over a websocket.
//   - [Client.Storage] manages buckets and the objects stored in them.
//
// The HTTP-based services share credentials headers and, when configured via
// [WithHTTPClient], a connection pool. The realtime client is configured but
// not dialed until you call Connect on it.
//
// # Acting on behalf of a user
//
// The service clients are stateless with respect to user sessions: sign a
// user in via [Client.Auth], then pass the access token where needed —
// [github.com/supa-community/supa.go/postgrest.Client.WithToken] for database
// queries under row level security, and SetAuth on the realtime client for
// filtered notifications.
//
// # Errors
//
// All HTTP services report failures as
// [github.com/supa-community/supa.go/pkg/apierror.Error] values, which can be
// matched with errors.As, or with errors.Is against the package sentinels
// such as apierror.ErrNotFound.
package supa
