// Package auth implements GitHub sign-in and the signed session cookie
// that carries the caller's identity between requests.
//
// The login flow stores a random state in an HttpOnly cookie, redirects to
// GitHub, and on callback exchanges the code for a profile. The profile is
// passed to gotier.EnsureUser so every signed-in user has a row (free by
// default) before a session token is issued.
package auth
