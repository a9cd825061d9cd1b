package passport_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	pp "github.com/aidevplatform/passport"
)

// doJSON posts body as JSON to handler and decodes the Result envelope.
func doJSON(t *testing.T, handler http.Handler, path string, body any) (*httptest.ResponseRecorder, pp.Result) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, decodeResult(t, rr)
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) pp.Result {
	t.Helper()
	var res pp.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("response is not a Result: %v (%s)", err, rr.Body.String())
	}
	return res
}

func localRouter(env *testEnv, expose bool) http.Handler {
	return pp.NewRouter(pp.RouterConfig{
		Local: &pp.LocalAuth{Service: env.Service, ExposeResetToken: expose},
	})
}

func TestHandleLogin(t *testing.T) {
	env := setupService(t)
	env.Service.Register(t.Context(), "alice", "pw1", "")
	router := localRouter(env, false)

	rr, res := doJSON(t, router, "/login", map[string]string{"username": "alice", "password": "pw1"})
	if rr.Code != http.StatusOK || res.Code != 0 {
		t.Fatalf("status = %d, result = %+v", rr.Code, res)
	}
	token, _ := res.Data.(string)
	if _, ok := env.Codec.Verify(token); !ok {
		t.Fatalf("data %v is not a valid token", res.Data)
	}

	rr, res = doJSON(t, router, "/login", map[string]string{"username": "alice", "password": "nope"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rr.Code)
	}
	wrongPw := res.Msg

	rr, res = doJSON(t, router, "/login", map[string]string{"username": "ghost", "password": "pw1"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want 401", rr.Code)
	}
	if res.Msg != wrongPw {
		t.Errorf("messages differ: %q vs %q", res.Msg, wrongPw)
	}
	if res.Error != pp.ErrCodeInvalidCreds {
		t.Errorf("error code = %q", res.Error)
	}
}

func TestHandleLogin_MissingField(t *testing.T) {
	env := setupService(t)
	rr, res := doJSON(t, localRouter(env, false), "/login", map[string]string{"username": "alice"})
	if rr.Code != http.StatusBadRequest || res.Error != pp.ErrCodeMissingField {
		t.Fatalf("status = %d, result = %+v", rr.Code, res)
	}
}

func TestHandleLogin_FormBody(t *testing.T) {
	env := setupService(t)
	env.Service.Register(t.Context(), "alice", "pw1", "")

	form := url.Values{"username": {"alice"}, "password": {"pw1"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	localRouter(env, false).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestHandleLogin_MethodNotAllowed(t *testing.T) {
	env := setupService(t)
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rr := httptest.NewRecorder()
	localRouter(env, false).ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestHandleRegister(t *testing.T) {
	env := setupService(t)
	router := localRouter(env, false)

	rr, res := doJSON(t, router, "/register", map[string]string{
		"username": "bob", "password": "pw", "nickname": "Bobby",
	})
	if rr.Code != http.StatusOK || res.Code != 0 {
		t.Fatalf("status = %d, result = %+v", rr.Code, res)
	}
	account, err := env.Store.GetAccountByUsername(t.Context(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if account.DisplayName != "Bobby" {
		t.Errorf("DisplayName = %q, want nickname to be used", account.DisplayName)
	}

	rr, res = doJSON(t, router, "/register", map[string]string{"username": "bob", "password": "x"})
	if rr.Code != http.StatusConflict || res.Error != pp.ErrCodeUsernameTaken {
		t.Fatalf("duplicate: status = %d, result = %+v", rr.Code, res)
	}
	if res.Field != "username" {
		t.Errorf("Field = %q, want username", res.Field)
	}

	rr, res = doJSON(t, router, "/register", map[string]string{"username": "carol"})
	if rr.Code != http.StatusBadRequest || res.Field != "password" {
		t.Fatalf("missing password: status = %d, result = %+v", rr.Code, res)
	}
}

func TestHandleForgot_Generic(t *testing.T) {
	env := setupService(t)
	env.Service.Register(t.Context(), "alice", "pw1", "")
	router := localRouter(env, false)

	rr1, known := doJSON(t, router, "/forgot", map[string]string{"username": "alice"})
	rr2, unknown := doJSON(t, router, "/forgot", map[string]string{"username": "ghost"})

	if rr1.Code != http.StatusOK || rr2.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d, want 200 for both", rr1.Code, rr2.Code)
	}
	if known.Data != unknown.Data {
		t.Errorf("replies differ: %v vs %v", known.Data, unknown.Data)
	}
	link := env.Notifier.links["alice"]
	if link == "" {
		t.Fatal("notifier was not called for a known account")
	}
	token := link[strings.Index(link, "token=")+len("token="):]
	if s, _ := known.Data.(string); strings.Contains(s, token) {
		t.Error("reply must not carry the reset token")
	}
}

func TestHandleForgot_ExposeToken(t *testing.T) {
	env := setupService(t)
	env.Service.Register(t.Context(), "alice", "pw1", "")
	router := localRouter(env, true)

	rr, res := doJSON(t, router, "/forgot", map[string]string{"username": "alice"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	token, _ := res.Data.(string)
	if len(token) != 64 {
		t.Fatalf("data = %v, want the raw token", res.Data)
	}

	rr, res = doJSON(t, router, "/reset", map[string]string{"token": token, "newPassword": "pw2"})
	if rr.Code != http.StatusOK || res.Code != 0 {
		t.Fatalf("reset: status = %d, result = %+v", rr.Code, res)
	}
	if _, err := env.Service.Login(t.Context(), "alice", "pw2"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	rr, res = doJSON(t, router, "/forgot", map[string]string{"username": "ghost"})
	if rr.Code != http.StatusBadRequest || res.Error != pp.ErrCodeRequestFailed {
		t.Fatalf("unknown user: status = %d, result = %+v", rr.Code, res)
	}
}

func TestHandleReset_Failures(t *testing.T) {
	env := setupService(t)
	env.Service.Register(t.Context(), "alice", "pw1", "")
	router := localRouter(env, false)

	token, err := env.Service.ForgotPassword(t.Context(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, res := doJSON(t, router, "/reset", map[string]string{"token": token, "newPassword": "pw2"}); res.Code != 0 {
		t.Fatalf("first reset failed: %+v", res)
	}

	tests := []struct {
		name string
		body map[string]string
		code string
	}{
		{"reused", map[string]string{"token": token, "newPassword": "pw3"}, pp.ErrCodeResetFailed},
		{"unknown", map[string]string{"token": "abcdef", "newPassword": "pw3"}, pp.ErrCodeResetFailed},
		{"no token", map[string]string{"newPassword": "pw3"}, pp.ErrCodeResetFailed},
		{"no password", map[string]string{"token": token}, pp.ErrCodeMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, res := doJSON(t, router, "/reset", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			if res.Error != tt.code {
				t.Errorf("error = %q, want %q", res.Error, tt.code)
			}
		})
	}
}

func TestHandleReset_Expired(t *testing.T) {
	env := setupService(t)
	env.Service.Register(t.Context(), "alice", "pw1", "")
	token, _ := env.Service.ForgotPassword(t.Context(), "alice")
	env.Clock.Advance(2 * pp.DefaultResetTicketTTL)

	rr, res := doJSON(t, localRouter(env, false), "/reset", map[string]string{"token": token, "newPassword": "pw2"})
	if rr.Code != http.StatusBadRequest || res.Msg != "token invalid or expired" {
		t.Fatalf("status = %d, result = %+v", rr.Code, res)
	}
}

func TestRouter_Prefix(t *testing.T) {
	env := setupService(t)
	env.Service.Register(t.Context(), "alice", "pw1", "")
	router := pp.NewRouter(pp.RouterConfig{
		Prefix: "/sys/user/",
		Local:  &pp.LocalAuth{Service: env.Service},
	})

	rr, _ := doJSON(t, router, "/sys/user/login", map[string]string{"username": "alice", "password": "pw1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("prefixed login status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unprefixed route status = %d, want 404", rec.Code)
	}
}
