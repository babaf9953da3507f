package domain

import "time"

// AuditLogEntry is an immutable record of a privileged mutation.
type AuditLogEntry struct {
	ID           string
	Action       string
	ActorID      string
	ActorEmail   string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	Metadata     string
	RequestID    string
	IPHash       string
	CreatedAt    time.Time
}

// Audit resource types.
const (
	AuditResourceOrder = "order"
	AuditResourceUser  = "user"
	AuditResourceBatch = "order_batch"
)

// Audit actions.
const (
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionCreate = "create"
	AuditActionRepair = "repair"
)
