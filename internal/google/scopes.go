package google

import "strings"

// CalendarScope grants read/write access to the user's calendars.
const CalendarScope = "https://www.googleapis.com/auth/calendar"

// DefaultScopes are requested by every authorization flow: calendar access
// plus the basic profile needed to resolve the account email.
var DefaultScopes = []string{
	CalendarScope,
	"openid",
	"email",
	"profile",
}

// ScopeString joins scopes the way they appear on the wire.
func ScopeString(scopes []string) string {
	return strings.Join(scopes, " ")
}
