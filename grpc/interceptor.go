package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aidevplatform/passport"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Verifier checks bearer tokens; usually a *passport.TokenCodec.
	Verifier passport.TokenVerifier

	// RequireAuth when true rejects anonymous calls with Unauthenticated.
	// When false every call proceeds and handlers inspect the principal.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// OptionalAuthConfig attaches a principal to every call and rejects none.
func OptionalAuthConfig(verifier passport.TokenVerifier) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Verifier:      verifier,
		PublicMethods: make(map[string]bool),
	}
}

// RequireAuthConfig rejects anonymous calls except to publicMethods.
func RequireAuthConfig(verifier passport.TokenVerifier, publicMethods ...string) *InterceptorConfig {
	config := OptionalAuthConfig(verifier)
	config.RequireAuth = true
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	p := passport.Anonymous()
	if token, ok := bearerFromIncoming(ctx, c.MetadataKeyAuthorization); ok {
		if id, ok := c.Verifier.Verify(token); ok {
			p = passport.Authenticated(id)
		}
	}
	if c.RequireAuth && !c.PublicMethods[method] && !p.IsAuthenticated() {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return passport.WithPrincipal(ctx, p), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies the
// bearer token in metadata and attaches a passport.Principal.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is the streaming counterpart of UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}

type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context { return s.ctx }
