// Package bridge reconciles and publishes authentication session state for
// an application that delegates credential handling to an external Session
// Store (a Supabase/GoTrue style auth service).
//
// Lifecycle:
//   - A single Bridge instance is constructed at application start and
//     bootstrapped exactly once. Bootstrap adopts the persisted token pair
//     from a TokenCache, asks the Session Store for the live session, and
//     runs an idempotent token sync so server-observable cookies and client
//     tokens agree. The change-notification stream is subscribed before the
//     initial fetch; events observed mid-bootstrap are buffered and replayed
//     so none are lost.
//   - After bootstrap every state change originates from an explicit
//     operation (Login, Logout, Register, ResetPassword, UpdatePassword) or
//     from the Session Store's event stream. Dispose cancels the stream
//     subscription and stops the consumer goroutine.
//
// Route guards:
//   - RouteGuard exposes Protected and PublicOnly fiber middleware derived
//     purely from the bridge's published snapshot. While bootstrap is
//     unresolved a guard neither renders nor redirects.
//
// Session Store implementations live under provider/: gotrue talks to a
// real GoTrue REST endpoint, memory is a complete in-process store for
// tests and local development. Token persistence lives under tokencache/.
package bridge
