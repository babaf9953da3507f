package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/marketdesk/admin/internal/domain"
	pfirestore "github.com/marketdesk/admin/internal/platform/firestore"
	"github.com/marketdesk/admin/internal/platform/pagination"
	"github.com/marketdesk/admin/internal/repositories"
)

const auditLogCollection = "auditLogs"

// AuditLogRepository stores audit entries keyed by their ULID.
type AuditLogRepository struct {
	entries *pfirestore.Collection[auditLogDocument]
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	return &AuditLogRepository{
		entries: pfirestore.NewCollection[auditLogDocument](provider, auditLogCollection),
	}, nil
}

// Append creates the entry; an existing ID is a conflict.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("audit log id is required")
	}
	return r.entries.Create(ctx, entry.ID, fromDomainAuditLog(entry))
}

// List returns one page ordered by createdAt then document id, both descending.
func (r *AuditLogRepository) List(ctx context.Context, query repositories.AuditLogQuery) (domain.CursorPage[domain.AuditLogEntry], error) {
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	docs, err := r.entries.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !query.After.IsZero() {
			q = q.StartAfter(query.After.CreatedAt, query.After.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	page := domain.CursorPage[domain.AuditLogEntry]{}
	if len(docs) > pageSize {
		docs = docs[:pageSize]
		last := docs[len(docs)-1]
		page.NextPageToken = pagination.Cursor{CreatedAt: last.Data.CreatedAt, ID: last.ID}.Token()
	}
	page.Items = make([]domain.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		page.Items = append(page.Items, toDomainAuditLog(doc))
	}
	return page, nil
}

// UpdateMetadata replaces the free-text metadata of an existing entry.
func (r *AuditLogRepository) UpdateMetadata(ctx context.Context, logID string, metadata string) error {
	return r.entries.Patch(ctx, logID, []firestore.Update{{Path: "metadata", Value: metadata}})
}

// Delete removes an existing entry.
func (r *AuditLogRepository) Delete(ctx context.Context, logID string) error {
	return r.entries.Remove(ctx, logID)
}

type auditLogDocument struct {
	Action       string         `firestore:"action"`
	ActorID      string         `firestore:"actorId"`
	ActorEmail   string         `firestore:"actorEmail"`
	ResourceType string         `firestore:"resourceType"`
	ResourceID   string         `firestore:"resourceId"`
	Details      map[string]any `firestore:"details,omitempty"`
	Metadata     string         `firestore:"metadata"`
	RequestID    string         `firestore:"requestId,omitempty"`
	IPHash       string         `firestore:"ipHash,omitempty"`
	CreatedAt    time.Time      `firestore:"createdAt"`
}

func fromDomainAuditLog(entry domain.AuditLogEntry) auditLogDocument {
	return auditLogDocument{
		Action:       entry.Action,
		ActorID:      entry.ActorID,
		ActorEmail:   entry.ActorEmail,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		Metadata:     entry.Metadata,
		RequestID:    entry.RequestID,
		IPHash:       entry.IPHash,
		CreatedAt:    entry.CreatedAt.UTC(),
	}
}

func toDomainAuditLog(doc pfirestore.Document[auditLogDocument]) domain.AuditLogEntry {
	data := doc.Data
	createdAt := data.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = doc.CreateTime.UTC()
	}
	return domain.AuditLogEntry{
		ID:           doc.ID,
		Action:       data.Action,
		ActorID:      data.ActorID,
		ActorEmail:   data.ActorEmail,
		ResourceType: data.ResourceType,
		ResourceID:   data.ResourceID,
		Details:      data.Details,
		Metadata:     data.Metadata,
		RequestID:    data.RequestID,
		IPHash:       data.IPHash,
		CreatedAt:    createdAt,
	}
}
