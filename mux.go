package passport

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// FederatedLogin is the pair of endpoints a federated provider exposes.
type FederatedLogin interface {
	HandleAuthorize(w http.ResponseWriter, r *http.Request)
	HandleCallback(w http.ResponseWriter, r *http.Request)
}

// RouterConfig lists the parts NewRouter mounts. Nil parts are skipped.
type RouterConfig struct {
	// Prefix is prepended to every route, e.g. "/sys/user".
	Prefix string

	Local *LocalAuth

	// Federated serves /oauth/authorize and /oauth/callback.
	Federated FederatedLogin

	// Providers serve /oauth/{name}/authorize and /oauth/{name}/callback.
	Providers map[string]FederatedLogin

	Gate *Gate
}

// NewRouter builds the HTTP surface:
//
//	POST {prefix}/login
//	POST {prefix}/register
//	POST {prefix}/forgot
//	POST {prefix}/reset
//	GET  {prefix}/oauth/authorize
//	GET  {prefix}/oauth/callback
//	GET  {prefix}/oauth/{name}/authorize
//	GET  {prefix}/oauth/{name}/callback
//
// The gate, when given, runs in front of every route. Callers may add their
// own routes to the returned router.
func NewRouter(cfg RouterConfig) *mux.Router {
	root := mux.NewRouter()
	r := root
	if prefix := strings.TrimSuffix(cfg.Prefix, "/"); prefix != "" {
		r = root.PathPrefix(prefix).Subrouter()
	}
	if cfg.Gate != nil {
		root.Use(cfg.Gate.Middleware)
	}

	if cfg.Local != nil {
		r.HandleFunc("/login", cfg.Local.HandleLogin).Methods(http.MethodPost)
		r.HandleFunc("/register", cfg.Local.HandleRegister).Methods(http.MethodPost)
		r.HandleFunc("/forgot", cfg.Local.HandleForgot).Methods(http.MethodPost)
		r.HandleFunc("/reset", cfg.Local.HandleReset).Methods(http.MethodPost)
	}
	if cfg.Federated != nil {
		r.HandleFunc("/oauth/authorize", cfg.Federated.HandleAuthorize).Methods(http.MethodGet)
		r.HandleFunc("/oauth/callback", cfg.Federated.HandleCallback).Methods(http.MethodGet)
	}
	for name, p := range cfg.Providers {
		r.HandleFunc("/oauth/"+name+"/authorize", p.HandleAuthorize).Methods(http.MethodGet)
		r.HandleFunc("/oauth/"+name+"/callback", p.HandleCallback).Methods(http.MethodGet)
	}
	return root
}
