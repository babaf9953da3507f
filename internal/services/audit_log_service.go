package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/platform/pagination"
	"github.com/marketdesk/admin/internal/platform/requestctx"
	"github.com/marketdesk/admin/internal/platform/textutil"
	"github.com/marketdesk/admin/internal/repositories"
)

const (
	hasherPrefix       = "sha256:"
	maxAuditTextRunes  = 512
	maxAuditLabelRunes = 128
	maxAuditMetaRunes  = 2000
)

// AuditLogger defines the logging contract used by the audit writer service.
type AuditLogger interface {
	Warnf(format string, args ...any)
}

type noopAuditLogger struct{}

func (noopAuditLogger) Warnf(string, ...any) {}

type auditLogService struct {
	repo     repositories.AuditLogRepository
	clock    func() time.Time
	newID    func() string
	logger   AuditLogger
	hashSalt string
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository  repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      AuditLogger
	HashSalt    string
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("audit log service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopAuditLogger{}
	}

	return &auditLogService{
		repo:     deps.Repository,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		hashSalt: deps.HashSalt,
	}, nil
}

// Record persists an audit entry. Repository failures are logged and swallowed so the
// mutation that triggered the entry is never reported as failed.
func (s *auditLogService) Record(ctx context.Context, record AuditRecord) {
	if s == nil || s.repo == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warnf("audit log append panicked: %v", r)
		}
	}()
	entry := s.buildEntry(ctx, record)
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Warnf("audit log append failed: action=%s resource=%s/%s: %v", entry.Action, entry.ResourceType, entry.ResourceID, err)
	}
}

func (s *auditLogService) List(ctx context.Context, page domain.Pagination) (domain.CursorPage[domain.AuditLogEntry], error) {
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	size := page.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	if size > pagination.MaxPageSize {
		size = pagination.MaxPageSize
	}
	result, err := s.repo.List(ctx, repositories.AuditLogQuery{PageSize: size, After: cursor})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, mapRepositoryError(err, nil)
	}
	return result, nil
}

// UpdateMetadata edits the free-text metadata of one entry. Only superadmins may do this.
func (s *auditLogService) UpdateMetadata(ctx context.Context, cmd UpdateAuditMetadataCommand) error {
	if cmd.Actor.Role != domain.RoleSuperadmin {
		return fmt.Errorf("audit log: metadata edits require superadmin: %w", ErrPermissionDenied)
	}
	logID := strings.TrimSpace(cmd.LogID)
	if logID == "" {
		return fmt.Errorf("audit log: id is required: %w", ErrValidation)
	}
	metadata := textutil.CleanText(cmd.Metadata, maxAuditMetaRunes)
	if err := s.repo.UpdateMetadata(ctx, logID, metadata); err != nil {
		return mapRepositoryError(err, ErrAuditLogNotFound)
	}
	return nil
}

// Delete removes one entry. Only superadmins may do this.
func (s *auditLogService) Delete(ctx context.Context, cmd DeleteAuditLogCommand) error {
	if cmd.Actor.Role != domain.RoleSuperadmin {
		return fmt.Errorf("audit log: deletion requires superadmin: %w", ErrPermissionDenied)
	}
	logID := strings.TrimSpace(cmd.LogID)
	if logID == "" {
		return fmt.Errorf("audit log: id is required: %w", ErrValidation)
	}
	if err := s.repo.Delete(ctx, logID); err != nil {
		return mapRepositoryError(err, ErrAuditLogNotFound)
	}
	return nil
}

func (s *auditLogService) buildEntry(ctx context.Context, record AuditRecord) domain.AuditLogEntry {
	client := requestctx.Client(ctx)
	entry := domain.AuditLogEntry{
		ID:           s.newID(),
		Action:       textutil.CleanLine(record.Action, maxAuditLabelRunes),
		ActorID:      textutil.CleanLine(record.ActorID, maxAuditLabelRunes),
		ActorEmail:   strings.ToLower(textutil.CleanLine(record.ActorEmail, maxAuditLabelRunes)),
		ResourceType: textutil.CleanLine(record.ResourceType, maxAuditLabelRunes),
		ResourceID:   textutil.CleanLine(record.ResourceID, maxAuditLabelRunes),
		Details:      textutil.CleanDetails(record.Details, maxAuditTextRunes),
		Metadata:     textutil.CleanText(record.Metadata, maxAuditMetaRunes),
		RequestID:    textutil.CleanLine(client.RequestID, maxAuditLabelRunes),
		CreatedAt:    s.clock(),
	}
	if ip := strings.TrimSpace(client.IPAddress); ip != "" {
		entry.IPHash = hasherPrefix + s.hashString(ip)
	}
	return entry
}

func (s *auditLogService) hashString(value string) string {
	sum := sha256.Sum256([]byte(s.hashSalt + value))
	return hex.EncodeToString(sum[:])
}
