package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/Mrprince0421/microsservi-os/internal/model"
)

// WriteError writes a JSON ErrorResponse tagged with the request's correlation id.
func WriteError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		Detail:        detail,
		CorrelationID: GetCorrelationID(r.Context()),
	})
}
