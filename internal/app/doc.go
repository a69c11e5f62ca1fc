// Package app holds the session use cases: sign-in, logout, token rotation
// and profile lookup. It orchestrates domain.SessionStore and knows nothing
// about HTTP or cookies.
package app
