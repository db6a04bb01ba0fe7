package security

import (
	"net/http"

	"github.com/noah-isme/backend-billing/internal/common"
)

// BodyLimit caps bill and payment payloads. A declared Content-Length over
// Max is refused before the handler runs; chunked bodies are wrapped in
// http.MaxBytesReader and the JSON decoder surfaces *http.MaxBytesError,
// which the handlers render as 413.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			tooLarge(w, b.Max)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}

// tooLarge writes the 413 envelope with the configured cap.
func tooLarge(w http.ResponseWriter, limit int64) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodeTooLarge, "request body too large",
		map[string]any{"maxBytes": limit})
}
