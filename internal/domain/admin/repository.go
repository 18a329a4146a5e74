package admin

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository defines audit log data access
type Repository interface {
	CreateAuditLog(ctx context.Context, log *AuditLog) error
	ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*AuditLog, error)
}

// AuditFilter for filtering audit logs
type AuditFilter struct {
	AdminID    string
	Action     string
	EntityType string
	EntityID   string
	Limit      int
	Offset     int
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates admin repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, admin_id, action, entity_type, entity_id, old_value, new_value, reason, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.AdminID,
		log.Action,
		log.EntityType,
		log.EntityID,
		jsonbArg(log.OldValue),
		jsonbArg(log.NewValue),
		log.Reason,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("admin repository create audit log: %w", err)
	}
	return nil
}

func (r *repository) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*AuditLog, error) {
	query := `
		SELECT id, admin_id, action, entity_type, entity_id,
		       COALESCE(old_value, 'null'::jsonb) AS old_value, COALESCE(new_value, 'null'::jsonb) AS new_value,
		       reason, ip_address, user_agent, created_at
		FROM audit_logs WHERE 1=1`
	args := []interface{}{}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += ` AND ` + column + ` = $` + strconv.Itoa(len(args))
	}
	add("admin_id", filter.AdminID)
	add("action", filter.Action)
	add("entity_type", filter.EntityType)
	add("entity_id", filter.EntityID)

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	logs := []*AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("admin repository list audit logs: %w", err)
	}
	return logs, nil
}

// jsonbArg sends an empty document as SQL NULL.
func jsonbArg(raw []byte) interface{} {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}
