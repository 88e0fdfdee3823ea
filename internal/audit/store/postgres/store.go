// Package postgres persists ActionRecords in a single action_records table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/audit"
	"caretrail/pkg/sentinel"
)

// Store implements audit.Store on database/sql.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL action record store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
	CREATE TABLE IF NOT EXISTS action_records (
		id                  UUID PRIMARY KEY,
		actor_id            BIGINT NOT NULL,
		actor_role          TEXT NOT NULL,
		actor_display_name  TEXT NOT NULL,
		action_type         TEXT NOT NULL,
		description         TEXT NOT NULL,
		target_type         TEXT NOT NULL DEFAULT '',
		target_id           BIGINT NOT NULL DEFAULT 0,
		target_display_name TEXT NOT NULL DEFAULT '',
		metadata            JSONB,
		source_ip           TEXT NOT NULL DEFAULT '',
		user_agent          TEXT NOT NULL DEFAULT '',
		session_id          TEXT NOT NULL DEFAULT '',
		request_id          TEXT NOT NULL DEFAULT '',
		trace_id            TEXT NOT NULL DEFAULT '',
		error_message       TEXT NOT NULL DEFAULT '',
		timestamp           TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_action_records_actor_id ON action_records (actor_id);
	CREATE INDEX IF NOT EXISTS idx_action_records_actor_role ON action_records (actor_role);
	CREATE INDEX IF NOT EXISTS idx_action_records_action_type ON action_records (action_type);
	CREATE INDEX IF NOT EXISTS idx_action_records_target ON action_records (target_type, target_id);
	CREATE INDEX IF NOT EXISTS idx_action_records_timestamp ON action_records (timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_action_records_role_timestamp ON action_records (actor_role, timestamp DESC);
`

// EnsureSchema creates the action_records table and its indices.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure action_records schema: %w", err)
	}
	return nil
}

const recordColumns = `
	id, actor_id, actor_role, actor_display_name, action_type, description,
	target_type, target_id, target_display_name, metadata,
	source_ip, user_agent, session_id, request_id, trace_id,
	error_message, timestamp
`

func (s *Store) Insert(ctx context.Context, record *audit.ActionRecord) error {
	metadata, err := audit.EncodeMetadata(record.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		INSERT INTO action_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.ActorID,
		string(record.ActorRole),
		record.ActorDisplayName,
		record.ActionType,
		record.Description,
		string(record.TargetType),
		record.TargetID,
		record.TargetDisplayName,
		nullableJSON(metadata),
		record.SourceIP,
		record.UserAgent,
		record.SessionID,
		record.RequestID,
		record.TraceID,
		record.ErrorMessage,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert action record: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (audit.ActionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM action_records WHERE id = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return audit.ActionRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return audit.ActionRecord{}, fmt.Errorf("find action record: %w", err)
	}
	return record, nil
}

func (s *Store) List(ctx context.Context, q audit.Query) ([]audit.ActionRecord, int64, error) {
	where, args := buildWhere(q.Filters)

	var total int64
	countQuery := `SELECT COUNT(*) FROM action_records` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count action records: %w", err)
	}

	query := `SELECT ` + recordColumns + ` FROM action_records` + where +
		` ORDER BY timestamp DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query action records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *Store) LatestSince(ctx context.Context, actorID int64, actionType string, since time.Time) (audit.ActionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM action_records
		WHERE actor_id = $1 AND action_type = $2 AND timestamp >= $3
		ORDER BY timestamp DESC
		LIMIT 1
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, actorID, actionType, since))
	if errors.Is(err, sql.ErrNoRows) {
		return audit.ActionRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return audit.ActionRecord{}, fmt.Errorf("find latest action record: %w", err)
	}
	return record, nil
}

func (s *Store) UpdateAggregate(ctx context.Context, id uuid.UUID, timestamp time.Time, description string, metadata audit.Metadata) error {
	encoded, err := audit.EncodeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		UPDATE action_records
		SET timestamp = $2, description = $3, metadata = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, timestamp, description, nullableJSON(encoded))
	if err != nil {
		return fmt.Errorf("update action record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update action record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) ListByActorAction(ctx context.Context, actorID int64, actionType string, limit int) ([]audit.ActionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM action_records
		WHERE actor_id = $1 AND action_type = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, actorID, actionType, limit)
	if err != nil {
		return nil, fmt.Errorf("query actor action records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *Store) DistinctActionTypes(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT action_type FROM action_records ORDER BY action_type`)
}

func (s *Store) DistinctTargetTypes(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT target_type FROM action_records WHERE target_type <> '' ORDER BY target_type`)
}

func (s *Store) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct values: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct values: %w", err)
	}
	return values, nil
}

func (s *Store) Stats(ctx context.Context, from, to *time.Time, now time.Time) (audit.Stats, error) {
	where, args := buildRangeWhere(from, to)
	stats := audit.Stats{ByRole: make(map[audit.Role]int64)}

	totalQuery := `SELECT COUNT(*) FROM action_records` + where
	if err := s.db.QueryRowContext(ctx, totalQuery, args...).Scan(&stats.TotalCount); err != nil {
		return audit.Stats{}, fmt.Errorf("count action records: %w", err)
	}

	roleQuery := `SELECT actor_role, COUNT(*) FROM action_records` + where + ` GROUP BY actor_role`
	rows, err := s.db.QueryContext(ctx, roleQuery, args...)
	if err != nil {
		return audit.Stats{}, fmt.Errorf("count records by role: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			role  string
			count int64
		)
		if err := rows.Scan(&role, &count); err != nil {
			return audit.Stats{}, fmt.Errorf("scan role count: %w", err)
		}
		stats.ByRole[audit.Role(role)] = count
	}
	if err := rows.Err(); err != nil {
		return audit.Stats{}, fmt.Errorf("iterate role counts: %w", err)
	}

	actionQuery := `
		SELECT action_type, COUNT(*) AS count
		FROM action_records` + where + `
		GROUP BY action_type
		ORDER BY count DESC, action_type ASC
		LIMIT 10
	`
	actionRows, err := s.db.QueryContext(ctx, actionQuery, args...)
	if err != nil {
		return audit.Stats{}, fmt.Errorf("count records by action: %w", err)
	}
	defer actionRows.Close()
	for actionRows.Next() {
		var ac audit.ActionCount
		if err := actionRows.Scan(&ac.ActionType, &ac.Count); err != nil {
			return audit.Stats{}, fmt.Errorf("scan action count: %w", err)
		}
		stats.TopActions = append(stats.TopActions, ac)
	}
	if err := actionRows.Err(); err != nil {
		return audit.Stats{}, fmt.Errorf("iterate action counts: %w", err)
	}

	dayArgs := append(append([]any{}, args...), now.Add(-24*time.Hour))
	dayQuery := `SELECT COUNT(*) FROM action_records` + andClause(where, fmt.Sprintf("timestamp >= $%d", len(dayArgs)))
	if err := s.db.QueryRowContext(ctx, dayQuery, dayArgs...).Scan(&stats.Last24hCount); err != nil {
		return audit.Stats{}, fmt.Errorf("count 24h records: %w", err)
	}

	monthArgs := append(append([]any{}, args...), now.AddDate(0, 0, -30))
	actorQuery := `
		SELECT actor_id, MAX(actor_display_name), COUNT(*) AS count
		FROM action_records` + andClause(where, fmt.Sprintf("timestamp >= $%d", len(monthArgs))) + `
		GROUP BY actor_id
		ORDER BY count DESC, actor_id ASC
		LIMIT 10
	`
	actorRows, err := s.db.QueryContext(ctx, actorQuery, monthArgs...)
	if err != nil {
		return audit.Stats{}, fmt.Errorf("count records by actor: %w", err)
	}
	defer actorRows.Close()
	for actorRows.Next() {
		var ac audit.ActorCount
		if err := actorRows.Scan(&ac.ActorID, &ac.ActorDisplayName, &ac.Count); err != nil {
			return audit.Stats{}, fmt.Errorf("scan actor count: %w", err)
		}
		stats.TopActors = append(stats.TopActors, ac)
	}
	if err := actorRows.Err(); err != nil {
		return audit.Stats{}, fmt.Errorf("iterate actor counts: %w", err)
	}

	return stats, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM action_records WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old action records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old action records: %w", err)
	}
	return deleted, nil
}

// buildWhere renders the filter set as a WHERE clause with positional args.
func buildWhere(f audit.Filters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.ActorID != 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if f.ActorRole != "" {
		add("actor_role = $%d", string(f.ActorRole))
	}
	if f.ActionType != "" {
		add("action_type = $%d", f.ActionType)
	}
	if f.TargetType != "" {
		add("target_type = $%d", string(f.TargetType))
	}
	if f.From != nil {
		add("timestamp >= $%d", *f.From)
	}
	if f.To != nil {
		add("timestamp <= $%d", *f.To)
	}
	if f.Search != "" {
		add("(actor_display_name ILIKE $%[1]d OR description ILIKE $%[1]d OR target_display_name ILIKE $%[1]d)", "%"+f.Search+"%")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildRangeWhere(from, to *time.Time) (string, []any) {
	var f audit.Filters
	f.From = from
	f.To = to
	return buildWhere(f)
}

func andClause(where, clause string) string {
	if where == "" {
		return " WHERE " + clause
	}
	return where + " AND " + clause
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (audit.ActionRecord, error) {
	var (
		record   audit.ActionRecord
		role     string
		target   string
		metadata []byte
	)
	err := row.Scan(
		&record.ID,
		&record.ActorID,
		&role,
		&record.ActorDisplayName,
		&record.ActionType,
		&record.Description,
		&target,
		&record.TargetID,
		&record.TargetDisplayName,
		&metadata,
		&record.SourceIP,
		&record.UserAgent,
		&record.SessionID,
		&record.RequestID,
		&record.TraceID,
		&record.ErrorMessage,
		&record.Timestamp,
	)
	if err != nil {
		return audit.ActionRecord{}, err
	}
	record.ActorRole = audit.Role(role)
	record.TargetType = audit.TargetType(target)
	if len(metadata) > 0 {
		record.Metadata, err = audit.DecodeMetadata(metadata)
		if err != nil {
			return audit.ActionRecord{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return record, nil
}

func scanRecords(rows *sql.Rows) ([]audit.ActionRecord, error) {
	var records []audit.ActionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action records: %w", err)
	}
	return records, nil
}
