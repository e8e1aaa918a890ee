package middleware

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/mcp-openai/internal/auth"
)

// LinkVerifier checks a download token for a file name.
type LinkVerifier interface {
	Verify(token, filename string) error
}

// NewLinkTokenMiddleware requires a valid ?token= bound to the {filename}
// route variable. A nil verifier lets every request through.
func NewLinkTokenMiddleware(verifier LinkVerifier, logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			filename := mux.Vars(r)["filename"]
			token := r.URL.Query().Get("token")
			if token == "" {
				http.Error(w, "missing download token", http.StatusUnauthorized)
				return
			}

			if err := verifier.Verify(token, filename); err != nil {
				logger.Warn("rejected download link", "filename", filename, "error", err)
				if errors.Is(err, auth.ErrExpiredLink) {
					http.Error(w, "download link expired", http.StatusGone)
					return
				}
				http.Error(w, "invalid download token", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
