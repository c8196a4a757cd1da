package domain

import (
	"context"
	"time"
)

// SettingsStore is the runtime key-value store holding delivery settings.
// Values are read fresh on every send so reconfiguration applies immediately.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) (map[string]string, error)
}

// AuditTrail is the append-only per-order action log.
type AuditTrail interface {
	Append(ctx context.Context, orderName, action, body string) error
	ListAudit(ctx context.Context, orderName string, limit int) ([]AuditEntry, error)
}

// AttachmentStore persists rendered documents between composer open and send.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, att Attachment) (Attachment, error)
	GetAttachment(ctx context.Context, id string) (*Attachment, error)
}

// DocumentRenderer produces the order summary document as PDF bytes.
type DocumentRenderer interface {
	RenderOrderPDF(ctx context.Context, order OrderRef) ([]byte, error)
}

// Alerter notifies operators about delivery failures on the hook path,
// where errors are swallowed rather than surfaced to a user.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

type AuditEntry struct {
	ID        int64     `json:"id"`
	OrderName string    `json:"orderName"`
	Action    string    `json:"action"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
