// Package calendar is the gateway to the user's primary Google Calendar.
//
// A Gateway reads the current access token from a TokenSource on every
// call, so it always acts for whoever is signed in at that moment. Every
// operation fails with ErrNotSignedIn before touching the network when no
// token is held.
//
// ListEvents never fails: it returns an empty slice and logs the problem,
// which keeps read views renderable. FetchEvents performs the same request
// and returns the error instead. Writes return an *APIError carrying the
// provider's message when the API rejects them.
//
// Example usage:
//
//	gw := calendar.New(sess, calendar.Options{})
//	events := gw.ListEvents(ctx, calendar.ListOptions{})
//	created, err := gw.CreateEvent(ctx, calendar.NewReminder("Dentist", "", start, time.Local))
package calendar
