package passport

import (
	"context"
	"log/slog"
	"net/http"
)

type principalKey string

const contextKeyPrincipal principalKey = "passport_principal"

// Principal is the gate's verdict for a request: either Authenticated with
// an Identity or Anonymous.
type Principal struct {
	identity *Identity
}

// Authenticated wraps id in a Principal.
func Authenticated(id Identity) Principal {
	return Principal{identity: &id}
}

// Anonymous is the Principal for requests without a valid token.
func Anonymous() Principal {
	return Principal{}
}

// Identity returns the identity and true for authenticated principals.
func (p Principal) Identity() (Identity, bool) {
	if p.identity == nil {
		return Identity{}, false
	}
	return *p.identity, true
}

func (p Principal) IsAuthenticated() bool { return p.identity != nil }

func (p Principal) String() string {
	if p.identity == nil {
		return "anonymous"
	}
	return p.identity.Username
}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext returns the principal set by a gate, or Anonymous
// when none ran.
func PrincipalFromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(contextKeyPrincipal).(Principal); ok {
		return p
	}
	return Anonymous()
}

// IdentityFromContext is shorthand for PrincipalFromContext(ctx).Identity().
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	return PrincipalFromContext(ctx).Identity()
}

// Gate reads an optional bearer token and attaches a Principal to the
// request context. It never rejects a request: a missing, malformed,
// expired or forged token just means Anonymous.
type Gate struct {
	Verifier TokenVerifier

	// AuthHeader defaults to "Authorization".
	AuthHeader string

	Logger  *slog.Logger
	Metrics *Metrics
}

// EnsureReasonableDefaults fills in unset fields.
func (g *Gate) EnsureReasonableDefaults() {
	if g.AuthHeader == "" {
		g.AuthHeader = "Authorization"
	}
	if g.Logger == nil {
		g.Logger = slog.Default()
	}
}

// Authenticate resolves the principal for r.
func (g *Gate) Authenticate(r *http.Request) Principal {
	raw := r.Header.Get(g.AuthHeader)
	if raw == "" {
		return Anonymous()
	}
	token, ok := BearerToken(raw)
	if !ok {
		return Anonymous()
	}
	id, ok := g.Verifier.Verify(token)
	if !ok {
		g.Logger.DebugContext(r.Context(), "ignoring invalid bearer token", "path", r.URL.Path)
		return Anonymous()
	}
	return Authenticated(id)
}

// Middleware runs Authenticate and continues down the chain.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	g.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := g.Authenticate(r)
		g.Metrics.observeGate(p.IsAuthenticated())
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireIdentity answers 401 unless a gate upstream authenticated the
// request.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFromContext(r.Context()).IsAuthenticated() {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			writeJSON(w, http.StatusUnauthorized, Result{Code: -1, Msg: "authentication required", Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability answers 401 for anonymous requests and 403 when the
// identity lacks capability.
func RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFromContext(r.Context())
			if !id.HasCapability(capability) {
				writeJSON(w, http.StatusForbidden, Result{Code: -1, Msg: "missing capability " + capability, Error: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
