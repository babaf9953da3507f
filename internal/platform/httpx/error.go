package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/marketdesk/admin/internal/platform/requestctx"
	"github.com/marketdesk/admin/internal/platform/textutil"
)

// Error is an API failure: a stable machine code, a human message and the HTTP status. Details
// are merged into the top level of the JSON body.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func NewError(code, message string, status int) Error {
	return Error{
		Code:    textutil.CleanLine(code, 80),
		Message: textutil.CleanLine(message, 512),
		Status:  status,
	}
}

func (e Error) Error() string { return e.Code + ": " + e.Message }

// WithDetails returns a copy of e carrying details.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) > 0 {
		e.Details = maps.Clone(details)
	}
	return e
}

// WriteError renders e as {"error","message","status"} plus request_id and trace_id when known.
// A zero status is written as 500.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	body := make(map[string]any, 5+len(e.Details))
	maps.Copy(body, e.Details)
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.Status
	if id := textutil.CleanLine(middleware.GetReqID(ctx), 80); id != "" {
		body["request_id"] = id
	}
	if id := textutil.CleanLine(requestctx.TraceID(ctx), 64); id != "" {
		body["trace_id"] = id
	}
	WriteJSON(w, e.Status, body)
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
