package web

import (
	"context"
	"net/http"
	"time"
)

// Health answers 200 when check passes and 503 otherwise. A nil check
// always passes.
func Health(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, state := http.StatusOK, "ok"
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				status, state = http.StatusServiceUnavailable, "unavailable"
			}
		}
		_ = WriteJSON(w, status, Envelope{"status": state}, nil)
	}
}
