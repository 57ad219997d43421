package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/audit"
)

const auditColumns = `id, actor_id, actor_name, action, entity, entity_id, detail, created_at`

var auditOrderColumns = map[string]string{
	"created_at": "created_at",
	"action":     "action",
	"actor_name": "actor_name",
	"entity":     "entity",
}

type auditRow struct {
	ID        string         `db:"id"`
	ActorID   sql.NullString `db:"actor_id"`
	ActorName string         `db:"actor_name"`
	Action    string         `db:"action"`
	Entity    string         `db:"entity"`
	EntityID  string         `db:"entity_id"`
	Detail    string         `db:"detail"`
	CreatedAt time.Time      `db:"created_at"`
}

type auditRepository struct {
	repository
}

func NewAuditRepository(exec core.DBExecutor) audit.Repository {
	return &auditRepository{repository{exec: exec}}
}

func (repo auditRepository) CreateEntry(ctx context.Context, entry audit.Entry, exec ...core.DBExecutor) (audit.Entry, error) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = entry.CreatedAt.UTC()

	q := `INSERT INTO audit_entry (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := execAffected(ctx, repo.getExec(exec), q,
		entry.ID, nullString(entry.ActorID), entry.ActorName, entry.Action,
		entry.Entity, entry.EntityID, entry.Detail, entry.CreatedAt,
	); err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return entry, nil
}

func (repo auditRepository) QueryEntries(ctx context.Context, filter *audit.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]audit.Entry, error) {
	var where whereClause
	if filter != nil && !filter.IsEmpty() {
		if filter.ActorID != "" {
			where.add("actor_id = ?", filter.ActorID)
		}
		if filter.Action != "" {
			where.add("action = ?", filter.Action)
		}
		if filter.Entity != "" {
			where.add("entity = ?", filter.Entity)
		}
		if filter.EntityID != "" {
			where.add("entity_id = ?", filter.EntityID)
		}
		if !filter.CreatedFrom.IsZero() {
			where.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	q := `SELECT ` + auditColumns + ` FROM audit_entry` + where.String() +
		` ORDER BY ` + core.OrderByClause(ordering, auditOrderColumns, "created_at DESC")

	var rows []auditRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, audit.Entry{
			ID:        row.ID,
			ActorID:   row.ActorID.String,
			ActorName: row.ActorName,
			Action:    row.Action,
			Entity:    row.Entity,
			EntityID:  row.EntityID,
			Detail:    row.Detail,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return entries, nil
}
