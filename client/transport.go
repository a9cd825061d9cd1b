package client

import "net/http"

// AuthTransport sends the caller's passport token as a bearer credential.
// Token is read per request, so a client that logs in or out later is
// picked up without rebuilding the transport. Requests go out unchanged
// when Token is nil or returns "".
type AuthTransport struct {
	Base  http.RoundTripper
	Token func() string
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Token == nil {
		return base.RoundTrip(req)
	}
	token := t.Token()
	if token == "" {
		return base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(authed)
}
