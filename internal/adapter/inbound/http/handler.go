package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/service"
)

// mcpHandler creates the handler for POST /mcp: read the body, run it
// through the pipeline, and write the reply. Notifications get 202 with an
// empty body.
func mcpHandler(pipeline *service.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			writeJSONError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}

		creds := CredentialsFromContext(r.Context())
		reply := pipeline.Handle(r.Context(), body, creds)
		if reply == nil {
			// Notification: forwarded, nothing to answer.
			w.WriteHeader(http.StatusAccepted)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(reply)
	})
}
