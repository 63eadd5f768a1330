package httpapi

import (
	"net/http"
	"strings"
)

// tokenFromRequest pulls the restaurant token from the query string or an
// Authorization: Bearer header. The token is the only credential; it is
// resolved against the directory inside the same unit of work that uses it.
func tokenFromRequest(r *http.Request) string {
	if tok := strings.TrimSpace(r.URL.Query().Get("token")); tok != "" {
		return tok
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
