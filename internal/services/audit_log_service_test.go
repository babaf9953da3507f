package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/platform/requestctx"
	"github.com/marketdesk/admin/internal/repositories"
)

type stubAuditRepo struct {
	entries   []domain.AuditLogEntry
	appendErr error
	panicOn   bool

	listQuery repositories.AuditLogQuery
	listResp  domain.CursorPage[domain.AuditLogEntry]

	metadata  map[string]string
	deleted   []string
	mutateErr error
}

func (s *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	if s.panicOn {
		panic("store exploded")
	}
	s.entries = append(s.entries, entry)
	return s.appendErr
}

func (s *stubAuditRepo) List(_ context.Context, query repositories.AuditLogQuery) (domain.CursorPage[domain.AuditLogEntry], error) {
	s.listQuery = query
	return s.listResp, nil
}

func (s *stubAuditRepo) UpdateMetadata(_ context.Context, logID, metadata string) error {
	if s.mutateErr != nil {
		return s.mutateErr
	}
	if s.metadata == nil {
		s.metadata = map[string]string{}
	}
	s.metadata[logID] = metadata
	return nil
}

func (s *stubAuditRepo) Delete(_ context.Context, logID string) error {
	if s.mutateErr != nil {
		return s.mutateErr
	}
	s.deleted = append(s.deleted, logID)
	return nil
}

type captureAuditLogger struct {
	warnings []string
}

func (c *captureAuditLogger) Warnf(format string, _ ...any) {
	c.warnings = append(c.warnings, strings.TrimSpace(format))
}

func newTestAuditService(t *testing.T, repo *stubAuditRepo, logger AuditLogger) AuditLogService {
	t.Helper()
	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository:  repo,
		Clock:       fixedClock(orderNow),
		IDGenerator: func() string { return "01HZX0000000000000000000AB" },
		Logger:      logger,
		HashSalt:    "pepper:",
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}
	return svc
}

func TestAuditLogServiceRecordSanitizesAndHashes(t *testing.T) {
	repo := &stubAuditRepo{}
	svc := newTestAuditService(t, repo, &captureAuditLogger{})

	ctx := requestctx.WithClient(context.Background(), requestctx.ClientInfo{RequestID: " req-9 ", IPAddress: "203.0.113.42"})
	svc.Record(ctx, AuditRecord{
		Action:       " update ",
		ActorID:      "admin-1",
		ActorEmail:   "Ops@Example.com",
		ResourceType: domain.AuditResourceUser,
		ResourceID:   "u1",
		Details:      map[string]any{"reason": "<b>spam</b>\x00 account", "oldValue": "active"},
		Metadata:     "ticket\x07 42",
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ID != "01HZX0000000000000000000AB" || !entry.CreatedAt.Equal(orderNow) {
		t.Fatalf("expected server-assigned id and timestamp, got %+v", entry)
	}
	if entry.Action != "update" || entry.ActorEmail != "ops@example.com" || entry.RequestID != "req-9" {
		t.Fatalf("unexpected labels %+v", entry)
	}
	if entry.Details["reason"] != "spam account" {
		t.Fatalf("expected markup and control characters stripped, got %q", entry.Details["reason"])
	}
	if entry.Metadata != "ticket 42" {
		t.Fatalf("unexpected metadata %q", entry.Metadata)
	}
	sum := sha256.Sum256([]byte("pepper:203.0.113.42"))
	if entry.IPHash != "sha256:"+hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected ip hash %q", entry.IPHash)
	}
}

func TestAuditLogServiceRecordNeverFails(t *testing.T) {
	logger := &captureAuditLogger{}
	repo := &stubAuditRepo{appendErr: errBoom}
	svc := newTestAuditService(t, repo, logger)

	svc.Record(context.Background(), AuditRecord{Action: "update"})
	if len(logger.warnings) != 1 {
		t.Fatalf("expected a warning, got %v", logger.warnings)
	}

	repo.panicOn = true
	svc.Record(context.Background(), AuditRecord{Action: "update"})
	if len(logger.warnings) != 2 {
		t.Fatalf("expected panic to be logged, got %v", logger.warnings)
	}
}

func TestAuditLogServiceList(t *testing.T) {
	repo := &stubAuditRepo{listResp: domain.CursorPage[domain.AuditLogEntry]{Items: []domain.AuditLogEntry{{ID: "a"}}}}
	svc := newTestAuditService(t, repo, nil)

	page, err := svc.List(context.Background(), domain.Pagination{PageSize: 1000})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || repo.listQuery.PageSize != 100 {
		t.Fatalf("expected capped page size, got %d", repo.listQuery.PageSize)
	}
	if _, err := svc.List(context.Background(), domain.Pagination{PageToken: "!!"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAuditLogServiceMaintenanceRequiresSuperadmin(t *testing.T) {
	repo := &stubAuditRepo{}
	svc := newTestAuditService(t, repo, nil)
	ctx := context.Background()
	admin := Actor{ID: "a1", Role: domain.RoleAdmin}
	root := Actor{ID: "s1", Role: domain.RoleSuperadmin}

	if err := svc.UpdateMetadata(ctx, UpdateAuditMetadataCommand{Actor: admin, LogID: "l1", Metadata: "x"}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := svc.Delete(ctx, DeleteAuditLogCommand{Actor: admin, LogID: "l1"}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	if err := svc.UpdateMetadata(ctx, UpdateAuditMetadataCommand{Actor: root, LogID: "l1", Metadata: " <i>note</i> "}); err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	if repo.metadata["l1"] != "note" {
		t.Fatalf("unexpected metadata %q", repo.metadata["l1"])
	}
	if err := svc.Delete(ctx, DeleteAuditLogCommand{Actor: root, LogID: "l1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	repo.mutateErr = errNotFoundRepo
	if err := svc.Delete(ctx, DeleteAuditLogCommand{Actor: root, LogID: "l2"}); !errors.Is(err, ErrAuditLogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
