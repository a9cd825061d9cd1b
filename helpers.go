package passport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Result is the JSON envelope every endpoint answers with. Code is 0 on
// success and -1 on failure; Error carries the AuthError code.
type Result struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Field string `json:"field,omitempty"`
}

const maxFormBytes = 1 << 20

// WriteSuccess writes a 200 Result carrying data.
func WriteSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Result{Code: 0, Msg: "success", Data: data})
}

// WriteError writes err as a failure Result with the status from
// ToAuthError.
func WriteError(w http.ResponseWriter, err error) {
	ae := ToAuthError(err)
	status := ae.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, Result{Code: -1, Msg: ae.Message, Error: ae.Code, Field: ae.Field})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// readFields pulls the named fields from a JSON object body, a form body or
// the query string, in that order of preference by Content-Type.
func readFields(r *http.Request, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
		if err != nil {
			return nil, fmt.Errorf("error reading body")
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &data); err != nil {
				return nil, fmt.Errorf("invalid JSON body")
			}
		}
		for _, name := range names {
			if v, ok := data[name].(string); ok {
				out[name] = v
			}
		}
		return out, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("error parsing form")
	}
	for _, name := range names {
		out[name] = r.FormValue(name)
	}
	return out, nil
}

// firstNonEmpty returns the first non-empty value among the given keys.
func firstNonEmpty(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" style
// header value. The scheme match is case-insensitive.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
