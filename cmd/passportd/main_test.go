package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aidevplatform/passport"
	"github.com/aidevplatform/passport/config"
	"github.com/aidevplatform/passport/oauth2"
)

func testOAuthConfig() config.OAuthConfig {
	return config.OAuthConfig{
		GitHub: config.ProviderConfig{
			ClientID:     "gh-id",
			ClientSecret: "gh-secret",
			RedirectURI:  "http://localhost:8080/api/oauth/github/callback",
			Scopes:       []string{"user:email"},
		},
	}
}

func buildWith(states passport.StateStore) func(oauth2.Provider) *oauth2.Exchange {
	return func(p oauth2.Provider) *oauth2.Exchange {
		return &oauth2.Exchange{Provider: p, States: states, FrontendRedirect: "http://localhost:5173"}
	}
}

func TestNewExchanges(t *testing.T) {
	states := passport.NewMemoryStateStore(passport.DefaultStateTTL)
	github, providers := newExchanges(testOAuthConfig(), buildWith(states))

	if github.HTTPClient == nil || github.Logger == nil || github.Timeout != oauth2.DefaultRequestTimeout {
		t.Fatalf("defaults not applied: %+v", github)
	}
	if got, ok := providers["github"]; !ok || got != passport.FederatedLogin(github) {
		t.Fatalf("providers[github] = %v, want the unqualified github exchange", got)
	}
	if _, ok := providers["google"]; ok {
		t.Error("google mounted without credentials")
	}

	cfg := testOAuthConfig()
	cfg.Google = config.ProviderConfig{ClientID: "g-id", ClientSecret: "g-secret"}
	_, providers = newExchanges(cfg, buildWith(states))
	google, ok := providers["google"].(*oauth2.Exchange)
	if !ok {
		t.Fatalf("providers[google] = %v", providers["google"])
	}
	if google.HTTPClient == nil {
		t.Error("google exchange defaults not applied")
	}
}

func TestGithubRoutes(t *testing.T) {
	states := passport.NewMemoryStateStore(passport.DefaultStateTTL)
	github, providers := newExchanges(testOAuthConfig(), buildWith(states))
	router := passport.NewRouter(passport.RouterConfig{
		Prefix:    "/sys/user",
		Federated: github,
		Providers: providers,
	})

	for _, path := range []string{"/sys/user/oauth/authorize", "/sys/user/oauth/github/authorize"} {
		t.Run(path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
			}
			var res passport.Result
			if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
				t.Fatal(err)
			}
			u, _ := res.Data.(string)
			if !strings.HasPrefix(u, "https://github.com/login/oauth/authorize?") || !strings.Contains(u, "state=") {
				t.Errorf("authorize url = %q", u)
			}
		})
	}
	if n := states.Len(); n != 2 {
		t.Errorf("issued states = %d, want 2", n)
	}
}
