package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/aidevplatform/passport"
)

// stubVerifier accepts exactly one token.
type stubVerifier struct {
	token string
	id    passport.Identity
}

func (v stubVerifier) Verify(token string) (passport.Identity, bool) {
	if token == v.token {
		return v.id, true
	}
	return passport.Identity{}, false
}

var testVerifier = stubVerifier{
	token: "good-token",
	id:    passport.Identity{AccountID: 7, Username: "alice", Capabilities: []string{passport.CapabilityUser}},
}

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestRequireAuthConfig(t *testing.T) {
	config := RequireAuthConfig(testVerifier, "/pkg.Svc/Method1", "/pkg.Svc/Method2")
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true")
	}
	if !config.PublicMethods["/pkg.Svc/Method1"] || !config.PublicMethods["/pkg.Svc/Method2"] {
		t.Error("expected both methods to be public")
	}
	if config.PublicMethods["/pkg.Svc/Method3"] {
		t.Error("expected Method3 to not be public")
	}
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("MetadataKeyAuthorization = %q", config.MetadataKeyAuthorization)
	}
}

func TestOptionalAuthConfig(t *testing.T) {
	if OptionalAuthConfig(testVerifier).RequireAuth {
		t.Error("expected RequireAuth to be false")
	}
}

func TestUnaryAuthInterceptor_RequireAuth_NoToken(t *testing.T) {
	interceptor := UnaryAuthInterceptor(RequireAuthConfig(testVerifier))
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated code, got %v", st.Code())
	}
}

func TestUnaryAuthInterceptor_RequireAuth_InvalidToken(t *testing.T) {
	interceptor := UnaryAuthInterceptor(RequireAuthConfig(testVerifier))
	ctx := incoming("authorization", "Bearer forged")
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryAuthInterceptor_RequireAuth_ValidToken(t *testing.T) {
	interceptor := UnaryAuthInterceptor(RequireAuthConfig(testVerifier))
	ctx := incoming("authorization", "Bearer good-token")
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	handlerCalled := false
	resp, err := interceptor(ctx, "req", info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		id, ok := IdentityFromContext(ctx)
		if !ok {
			t.Fatal("expected identity in context")
		}
		if id.Username != "alice" || id.AccountID != 7 {
			t.Errorf("identity = %+v", id)
		}
		return "response", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
	if resp != "response" {
		t.Errorf("resp = %v", resp)
	}
}

func TestUnaryAuthInterceptor_PublicMethod(t *testing.T) {
	interceptor := UnaryAuthInterceptor(RequireAuthConfig(testVerifier, "/pkg.Svc/Health"))
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Health"}

	handlerCalled := false
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		if passport.PrincipalFromContext(ctx).IsAuthenticated() {
			t.Error("expected anonymous principal")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called for public method")
	}
}

func TestUnaryAuthInterceptor_OptionalAuth(t *testing.T) {
	interceptor := UnaryAuthInterceptor(OptionalAuthConfig(testVerifier))
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"no metadata", context.Background(), "anonymous"},
		{"invalid token", incoming("authorization", "Bearer nope"), "anonymous"},
		{"wrong scheme", incoming("authorization", "Basic good-token"), "anonymous"},
		{"valid token", incoming("authorization", "Bearer good-token"), "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			_, err := interceptor(tt.ctx, nil, info, func(ctx context.Context, req any) (any, error) {
				got = passport.PrincipalFromContext(ctx).String()
				return nil, nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("principal = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnaryAuthInterceptor_CustomMetadataKey(t *testing.T) {
	config := RequireAuthConfig(testVerifier)
	config.MetadataKeyAuthorization = "x-passport-token"
	interceptor := UnaryAuthInterceptor(config)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(incoming("x-passport-token", "Bearer good-token"), nil, info,
		func(ctx context.Context, req any) (any, error) { return nil, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// mockServerStream implements grpc.ServerStream for testing
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}

func TestStreamAuthInterceptor(t *testing.T) {
	interceptor := StreamAuthInterceptor(RequireAuthConfig(testVerifier))
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/Watch"}

	err := interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv any, ss grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	stream := &mockServerStream{ctx: incoming("authorization", "Bearer good-token")}
	err = interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
		id, ok := IdentityFromContext(ss.Context())
		if !ok || id.Username != "alice" {
			t.Errorf("identity = %+v, %v", id, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithBearerToken(t *testing.T) {
	ctx := WithBearerToken(context.Background(), "good-token")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if got := md.Get(DefaultMetadataKeyAuthorization); len(got) != 1 || got[0] != "Bearer good-token" {
		t.Fatalf("authorization metadata = %v", got)
	}

	// What the client sends is what the server interceptor accepts.
	token, ok := bearerFromIncoming(metadata.NewIncomingContext(context.Background(), md), DefaultMetadataKeyAuthorization)
	if !ok || token != "good-token" {
		t.Fatalf("bearerFromIncoming = %q, %v", token, ok)
	}
}
