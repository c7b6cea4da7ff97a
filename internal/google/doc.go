// Package google implements the identity provider contract of
// internal/identity on top of Google OAuth 2.0.
//
// The Loader fetches the OpenID discovery document; until that succeeds the
// library counts as not ready. A loaded Library hands out token clients
// that run the authorization code flow with PKCE through a loopback
// redirect and the system browser. UserInfoClient resolves the account
// behind an access token with the oauth2/v2 API.
package google
