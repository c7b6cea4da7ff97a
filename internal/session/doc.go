// Package session owns the sign-in state of todocal.
//
// A Session ties together the persisted token record, the identity
// provider's client library and a single listener that observes every
// transition. It exposes the operations collaborators need: Initialize,
// RequestAuthorization, SignOut and the synchronous reads IsSignedIn,
// Email and AccessToken.
//
// # Lifecycle
//
//	idle ──Initialize──▶ initializing ──stored token valid──▶ validated
//	                          │                                   │
//	                          └──library loaded, client built──▶ ready
//
// SignOut and a rejected token return the lifecycle to idle. Whether the
// user is signed in is independent of the lifecycle: it only depends on a
// token being held. Concurrent Initialize calls share one setup.
//
// # Notifications
//
// The listener registered through Initialize is called synchronously, on
// the goroutine that caused the transition, after the session lock has
// been released. It may call back into the Session.
package session
