package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/aidevplatform/passport"
)

// DefaultRequestTimeout bounds each outbound call to the provider.
const DefaultRequestTimeout = 10 * time.Second

// Exchange runs the federated login flow for one provider:
//
//	AuthorizeURL: new state, provider URL
//	Complete:     consume state, exchange code, fetch profile,
//	              ensure local account, mint identity token
//
// The callback is refused unless its state was issued by States and has
// not been used or expired.
type Exchange struct {
	Provider Provider
	States   passport.StateStore
	Service  *passport.CredentialService

	// FrontendRedirect is where the callback sends the browser, with the
	// token in the URL fragment.
	FrontendRedirect string

	// Timeout applies to the token exchange and the profile fetch
	// separately. Defaults to DefaultRequestTimeout.
	Timeout time.Duration

	// HTTPClient is used for outbound calls. Defaults to a client with
	// Timeout set.
	HTTPClient *http.Client

	Logger  *slog.Logger
	Metrics *passport.Metrics
}

// EnsureDefaults fills in unset fields. Call it once before the exchange
// serves requests; request paths only read the fields.
func (e *Exchange) EnsureDefaults() {
	if e.Timeout <= 0 {
		e.Timeout = DefaultRequestTimeout
	}
	if e.HTTPClient == nil {
		e.HTTPClient = &http.Client{Timeout: e.Timeout}
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
}

// Configured reports whether the provider has a client id and secret.
func (e *Exchange) Configured() bool {
	cfg := e.Provider.Config()
	return cfg.ClientID != "" && cfg.ClientSecret != ""
}

// AuthorizeURL issues a state and returns the provider URL embedding it.
// Fails with ErrNotConfigured when the client id is unset.
func (e *Exchange) AuthorizeURL(ctx context.Context) (u string, err error) {
	defer func() { e.Metrics.ObserveOAuth(e.Provider.Name(), "authorize", err) }()

	cfg := e.Provider.Config()
	if cfg.ClientID == "" {
		return "", passport.ErrNotConfigured
	}
	state, err := e.States.CreateState(ctx)
	if err != nil {
		return "", fmt.Errorf("creating oauth state: %w", err)
	}
	return cfg.AuthCodeURL(state), nil
}

// Complete turns a callback's code and state into a passport identity
// token. Errors are ErrNotConfigured, ErrStateInvalid, passport.ErrMissingField
// (no code), ErrUpstream, ErrUpstreamTimeout, or a local storage failure.
func (e *Exchange) Complete(ctx context.Context, code, state string) (token string, err error) {
	provider := e.Provider.Name()
	defer func() { e.Metrics.ObserveOAuth(provider, "callback", err) }()

	if !e.Configured() {
		return "", passport.ErrNotConfigured
	}
	if !e.States.ValidateAndConsume(ctx, state) {
		return "", passport.ErrStateInvalid
	}
	if code == "" {
		return "", fmt.Errorf("%w: code", passport.ErrMissingField)
	}

	oauthToken, err := e.exchangeCode(ctx, code)
	if err != nil {
		return "", err
	}

	profile, err := e.fetchProfile(ctx, oauthToken)
	if err != nil {
		return "", err
	}

	username := provider + ":" + profile.Login
	account, err := e.Service.EnsureFederatedAccount(ctx, username, profile.DisplayName)
	if err != nil {
		return "", fmt.Errorf("resolving local account: %w", err)
	}
	token, err = e.Service.IssueToken(ctx, account)
	if err != nil {
		return "", err
	}
	e.logger().InfoContext(ctx, "federated login", "provider", provider, "username", username)
	return token, nil
}

func (e *Exchange) exchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient())

	tok, err := e.Provider.Config().Exchange(ctx, code)
	if err != nil {
		return nil, upstreamError(ctx, "token exchange", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token exchange returned no access token", passport.ErrUpstream)
	}
	return tok, nil
}

func (e *Exchange) fetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	profile, err := e.Provider.FetchProfile(ctx, e.httpClient(), tok)
	if err != nil {
		return nil, upstreamError(ctx, "profile fetch", err)
	}
	return profile, nil
}

func upstreamError(ctx context.Context, step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
		return fmt.Errorf("%w: %s: %v", passport.ErrUpstreamTimeout, step, err)
	}
	return fmt.Errorf("%w: %s: %v", passport.ErrUpstream, step, err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// RedirectURL is where the browser goes after a successful callback:
// FrontendRedirect with a trailing slash and "#token=<token>".
func (e *Exchange) RedirectURL(token string) string {
	base := e.FrontendRedirect
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "#token=" + token
}

// HandleAuthorize answers with the provider URL in the Result data.
func (e *Exchange) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	u, err := e.AuthorizeURL(r.Context())
	if err != nil {
		e.logger().WarnContext(r.Context(), "authorize failed", "provider", e.Provider.Name(), "error", err)
		passport.WriteError(w, err)
		return
	}
	passport.WriteSuccess(w, u)
}

// HandleCallback completes the flow and redirects to the front end.
// Failures answer with a Result and a 4xx or 5xx status.
func (e *Exchange) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		// The user declined or the provider refused; the state is spent.
		e.States.ValidateAndConsume(r.Context(), q.Get("state"))
		e.logger().InfoContext(r.Context(), "provider returned error", "provider", e.Provider.Name(), "error", errCode)
		passport.WriteError(w, passport.NewAuthError(passport.ErrCodeUpstream, "authorization denied", ""))
		return
	}

	token, err := e.Complete(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		e.logger().WarnContext(r.Context(), "oauth callback failed", "provider", e.Provider.Name(), "error", err)
		passport.WriteError(w, err)
		return
	}
	http.Redirect(w, r, e.RedirectURL(token), http.StatusFound)
}

func (e *Exchange) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultRequestTimeout
}

func (e *Exchange) httpClient() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return &http.Client{Timeout: e.timeout()}
}

func (e *Exchange) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
