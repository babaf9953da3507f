package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErrorIncludesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, NewError("permission_denied", "no\naccess", http.StatusForbidden).
		WithDetails(map[string]any{"sign_out": true}))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "permission_denied" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if body["message"] != "no access" {
		t.Fatalf("expected newline stripped, got %q", body["message"])
	}
	if body["sign_out"] != true {
		t.Fatalf("expected sign_out detail")
	}
}

type decodeTarget struct {
	Status string `json:"status" validate:"required,oneof=active banned"`
	Reason string `json:"reason" validate:"max=10"`
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"active"}`))
	var dst decodeTarget
	if err := DecodeJSON(req, &dst, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Status != "active" {
		t.Fatalf("unexpected status %q", dst.Status)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"gone"}`))
	err := DecodeJSON(req, &decodeTarget{}, false)
	if !errors.Is(err, ErrInvalidBody) {
		t.Fatalf("expected ErrInvalidBody, got %v", err)
	}
	if !strings.Contains(err.Error(), "status must be one of") {
		t.Fatalf("expected json field name in message, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"active","extra":1}`))
	if err := DecodeJSON(req, &decodeTarget{}, false); !errors.Is(err, ErrInvalidBody) {
		t.Fatalf("expected unknown field rejection, got %v", err)
	}
}

func TestDecodeJSONAllowsEmptyBody(t *testing.T) {
	type optional struct {
		DryRun bool `json:"dry_run"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	var dst optional
	if err := DecodeJSON(req, &dst, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
