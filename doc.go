// Package passport provides local credential authentication, federated
// (OAuth2) login and stateless identity tokens for HTTP and gRPC services.
//
// # Architecture
//
// Account: a local user record keyed by a unique username. Federated users
// get an account too, named "<provider>:<login>", created on first login.
//
// TokenCodec: mints and verifies HS256 identity tokens. The token is the
// only session state; nothing is kept server side.
//
// CredentialService: login, registration and the forgot/reset flow built on
// a CredentialStore (see stores/gorm, stores/fs and stores/gae).
//
// StateStore: short-lived, single-use CSRF values for the OAuth2 redirect.
// MemoryStateStore serves one instance; stores/redis serves several.
//
// Gate: HTTP middleware that turns an optional bearer token into a Principal
// on the request context. It never rejects; handlers that need an identity
// wrap themselves in RequireIdentity.
//
// # Basic Usage
//
//	store, _ := fs.NewCredentialStore("/var/lib/passport")
//	codec, _ := passport.NewTokenCodec(secret)
//	svc := passport.NewCredentialService(store, codec)
//
//	states := passport.NewMemoryStateStore(passport.DefaultStateTTL)
//	states.Start(ctx)
//	defer states.Stop()
//
//	exchange := &oauth2.Exchange{
//	    Provider: oauth2.NewGithubOAuth2(clientID, clientSecret, redirectURI),
//	    States:   states,
//	    Service:  svc,
//	    FrontendRedirect: "https://app.example.com",
//	}
//
//	router := passport.NewRouter(passport.RouterConfig{
//	    Local:     &passport.LocalAuth{Service: svc},
//	    Federated: exchange,
//	    Gate:      &passport.Gate{Verifier: codec},
//	})
//	http.ListenAndServe(":8080", router)
//
// Downstream handlers read the caller with IdentityFromContext.
package passport
