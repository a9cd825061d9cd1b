// Package grpc carries passport identity tokens over gRPC metadata and
// applies the passport gate to incoming calls.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/aidevplatform/passport"
)

// DefaultMetadataKeyAuthorization is the metadata key holding "Bearer <token>".
const DefaultMetadataKeyAuthorization = "authorization"

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization".
	MetadataKeyAuthorization string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeyAuthorization: DefaultMetadataKeyAuthorization}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

// WithBearerToken returns an outgoing context that sends token to the
// server. Use it on the client side of a call.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// IdentityFromContext returns the identity attached by the interceptors.
func IdentityFromContext(ctx context.Context) (passport.Identity, bool) {
	return passport.IdentityFromContext(ctx)
}

// bearerFromIncoming returns the first well-formed bearer token in the
// incoming metadata.
func bearerFromIncoming(ctx context.Context, key string) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get(key) {
		if token, ok := passport.BearerToken(v); ok {
			return token, true
		}
	}
	return "", false
}
