package passport_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	pp "github.com/aidevplatform/passport"
)

type journeyServer struct {
	t       *testing.T
	server  *httptest.Server
	env     *testEnv
	metrics *pp.Metrics
}

func newJourneyServer(t *testing.T) *journeyServer {
	t.Helper()
	env := setupService(t)
	metrics := pp.NewMetrics(prometheus.NewRegistry())
	env.Service.Metrics = metrics

	router := pp.NewRouter(pp.RouterConfig{
		Prefix: "/sys/user",
		Local:  &pp.LocalAuth{Service: env.Service, ExposeResetToken: true},
		Gate:   &pp.Gate{Verifier: env.Codec, Metrics: metrics},
	})
	router.Handle("/api/me", pp.RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := pp.IdentityFromContext(r.Context())
		pp.WriteSuccess(w, id.Username)
	})))
	router.Handle("/api/admin", pp.RequireCapability(pp.CapabilityAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pp.WriteSuccess(w, "ok")
	})))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &journeyServer{t: t, server: server, env: env, metrics: metrics}
}

func (s *journeyServer) post(path string, body map[string]string) (int, pp.Result) {
	s.t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		s.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var res pp.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		s.t.Fatalf("POST %s: decoding: %v", path, err)
	}
	return resp.StatusCode, res
}

func (s *journeyServer) get(path, token string) (int, pp.Result) {
	s.t.Helper()
	req, _ := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var res pp.Result
	json.NewDecoder(resp.Body).Decode(&res)
	return resp.StatusCode, res
}

func TestJourney_RegisterLoginAndCallAPI(t *testing.T) {
	s := newJourneyServer(t)

	if status, res := s.post("/sys/user/register", map[string]string{
		"username": "alice", "password": "pw1", "displayName": "Alice",
	}); status != http.StatusOK {
		t.Fatalf("register: %d %+v", status, res)
	}

	status, res := s.post("/sys/user/login", map[string]string{"username": "alice", "password": "pw1"})
	if status != http.StatusOK {
		t.Fatalf("login: %d %+v", status, res)
	}
	token := res.Data.(string)

	if status, res := s.get("/api/me", token); status != http.StatusOK || res.Data != "alice" {
		t.Fatalf("/api/me: %d %+v", status, res)
	}
	if status, _ := s.get("/api/admin", token); status != http.StatusOK {
		t.Fatalf("/api/admin with default capabilities: %d", status)
	}
	if status, _ := s.get("/api/me", ""); status != http.StatusUnauthorized {
		t.Fatalf("/api/me anonymous: %d", status)
	}
	if status, _ := s.get("/api/me", token+"tampered"); status != http.StatusUnauthorized {
		t.Fatalf("/api/me tampered: %d", status)
	}

	if got := testutil.ToFloat64(s.metrics.LoginsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("successful logins = %v, want 1", got)
	}
}

func TestJourney_ForgotAndResetPassword(t *testing.T) {
	s := newJourneyServer(t)
	s.post("/sys/user/register", map[string]string{"username": "bob", "password": "old"})

	status, res := s.post("/sys/user/forgot", map[string]string{"username": "bob"})
	if status != http.StatusOK {
		t.Fatalf("forgot: %d %+v", status, res)
	}
	resetToken := res.Data.(string)

	if status, res := s.post("/sys/user/reset", map[string]string{
		"token": resetToken, "newPassword": "new",
	}); status != http.StatusOK {
		t.Fatalf("reset: %d %+v", status, res)
	}

	if status, _ := s.post("/sys/user/login", map[string]string{"username": "bob", "password": "old"}); status != http.StatusUnauthorized {
		t.Errorf("old password login: %d, want 401", status)
	}
	if status, _ := s.post("/sys/user/login", map[string]string{"username": "bob", "password": "new"}); status != http.StatusOK {
		t.Errorf("new password login: %d, want 200", status)
	}

	status, res = s.post("/sys/user/reset", map[string]string{"token": resetToken, "newPassword": "again"})
	if status != http.StatusBadRequest || res.Error != pp.ErrCodeResetFailed {
		t.Errorf("reused token: %d %+v", status, res)
	}

	if got := testutil.ToFloat64(s.metrics.PasswordResetTotal.WithLabelValues("reset", "failure")); got != 1 {
		t.Errorf("failed resets = %v, want 1", got)
	}
}

func TestJourney_GateDoesNotBlockPublicRoutes(t *testing.T) {
	s := newJourneyServer(t)
	s.post("/sys/user/register", map[string]string{"username": "carol", "password": "pw"})

	// A stale token on a public route is ignored rather than rejected.
	expired, _ := s.env.Codec.Mint(99, "ghost", nil, -1)
	data, _ := json.Marshal(map[string]string{"username": "carol", "password": "pw"})
	req, _ := http.NewRequest(http.MethodPost, s.server.URL+"/sys/user/login", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+expired)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with stale bearer: %d, want 200", resp.StatusCode)
	}
}
