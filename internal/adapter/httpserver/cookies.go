package httpserver

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

const refreshCookieName = "refresh_token"

type cookieScope int

const (
	scopeCanonical cookieScope = iota
	scopeSSO
)

type cookieTarget struct {
	name  string
	scope cookieScope
}

// loginCookies is every cookie the login flows can leave in a browser.
// broadcaster_id is not a credential but is cleared with the rest.
var loginCookies = []cookieTarget{
	{refreshCookieName, scopeCanonical},
	{"sso_refresh_token", scopeCanonical},
	{"sso_refresh_token_tokenized", scopeSSO},
	{"sso_access_token", scopeCanonical},
	{"sso_access_token_tokenized", scopeSSO},
	{"broadcaster_id", scopeCanonical},
}

// CookieClearingPolicy builds the refresh cookie set at login and the
// Set-Cookie headers that remove every login cookie at logout.
type CookieClearingPolicy struct {
	domain    string
	ssoDomain string
	maxAge    time.Duration
	clock     clockwork.Clock
}

func NewCookieClearingPolicy(domain, ssoDomain string, sessionMaxAge time.Duration, clock clockwork.Clock) *CookieClearingPolicy {
	return &CookieClearingPolicy{domain: domain, ssoDomain: ssoDomain, maxAge: sessionMaxAge, clock: clock}
}

// ClearingCookies returns one expired cookie per login cookie, in a fixed
// order. Clearing a cookie the browser never received is harmless.
func (p *CookieClearingPolicy) ClearingCookies() []*http.Cookie {
	expired := p.clock.Now().Add(-24 * time.Hour)

	out := make([]*http.Cookie, 0, len(loginCookies))
	for _, target := range loginCookies {
		out = append(out, &http.Cookie{
			Name:     target.name,
			Value:    "",
			Path:     "/",
			Domain:   p.domainFor(target.scope),
			Expires:  expired,
			MaxAge:   -1,
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteNoneMode,
		})
	}
	return out
}

func (p *CookieClearingPolicy) RefreshCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Domain:   p.domain,
		Expires:  p.clock.Now().Add(p.maxAge),
		MaxAge:   int(p.maxAge.Seconds()),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	}
}

func (p *CookieClearingPolicy) domainFor(scope cookieScope) string {
	if scope == scopeSSO {
		return p.ssoDomain
	}
	return p.domain
}
