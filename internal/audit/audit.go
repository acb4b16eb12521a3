// Package audit records operational lifecycle events for operator
// visibility. The server records tenant-registered and tenant-evicted
// events; the refresh-failed and refresh-recovered event names are
// defined here but no caller records them. It never
// stores a secret value or raw token; only the tenant fingerprint, which
// is already the safe-to-log identifier used throughout the cache
// (spec §3 Glossary: Fingerprint).
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventLog is one operational event row.
type EventLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Tenant    string    `gorm:"type:varchar(64);not null;index:idx_audit_tenant" json:"tenant"`
	Event     string    `gorm:"type:varchar(50);not null;index:idx_audit_event" json:"event"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
	RequestID *string   `gorm:"type:varchar(100)" json:"request_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_audit_time" json:"created_at"`
}

// TableName returns the table name for GORM.
func (EventLog) TableName() string {
	return "cache_event_log"
}

// BeforeCreate sets a default ID.
func (e *EventLog) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Event name constants.
const (
	EventTenantRegistered = "tenant_registered"
	EventTenantEvicted    = "tenant_evicted"
	EventRefreshFailed    = "refresh_failed"
	EventRefreshRecovered = "refresh_recovered"
)

// Repository persists and queries operational events.
type Repository interface {
	Record(ctx context.Context, entry *EventLog) error
	RecentForTenant(ctx context.Context, tenant string, since time.Time, limit int) ([]*EventLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new audit repository instance.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Record inserts a new event row.
func (r *repository) Record(ctx context.Context, entry *EventLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// RecentForTenant retrieves events for a tenant fingerprint since a
// given time.
func (r *repository) RecentForTenant(ctx context.Context, tenant string, since time.Time, limit int) ([]*EventLog, error) {
	var logs []*EventLog
	query := r.db.WithContext(ctx).
		Where("tenant = ? AND created_at >= ?", tenant, since).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
