// Package tokenstore persists the last known access token and account email
// so a session survives process restarts.
//
// The Store knows the token and email keys plus the account choice flag
// set at sign-out. It does not validate, expire or refresh tokens. The durable medium is a Backend; the package
// ships file, memory, badger, sqlite and valkey backends. Values can be
// sealed with AES-256-GCM before they reach the backend.
//
//	backend, err := tokenstore.NewFileBackend(tokenstore.DefaultFilePath())
//	store, err := tokenstore.New(backend, tokenstore.Options{})
//	err = store.Save(ctx, tokenstore.Record{AccessToken: tok, Email: email})
package tokenstore
