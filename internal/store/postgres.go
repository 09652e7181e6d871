package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in a read-write transaction, rolling back when fn fails.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, nil, fn)
}

func (s *PostgresStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *PostgresStore) run(ctx context.Context, opts *sql.TxOptions, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", translate(err))
	}
	return nil
}

// EnsureUser inserts a user on first sign-in or refreshes last_login. The
// boolean reports whether the row was created.
func (s *PostgresStore) EnsureUser(ctx context.Context, email, name string, at time.Time) (User, bool, error) {
	const upsert = `
		INSERT INTO users (email, name, created_at, last_login)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (email) DO UPDATE
		SET last_login = EXCLUDED.last_login,
		    name = CASE WHEN users.name = '' THEN EXCLUDED.name ELSE users.name END
		RETURNING id, email, name, role, active, created_at, last_login, (xmax = 0) AS inserted
	`
	var (
		user      User
		lastLogin sql.NullTime
		inserted  bool
	)
	err := s.db.QueryRowContext(ctx, upsert, email, name, at).Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.Active, &user.CreatedAt, &lastLogin, &inserted,
	)
	if err != nil {
		return User{}, false, fmt.Errorf("ensure user: %w", err)
	}
	user.LastLogin = nullTimePtr(lastLogin)
	return user, inserted, nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, user_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6)
	`, entry.EventType, nullInt64(entry.UserID), string(payload), entry.IPAddress, entry.UserAgent, createdAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultAuditPageSize
	}
	const where = `WHERE ($1 = '' OR event_type = $1) AND ($2::bigint IS NULL OR user_id = $2)`

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log `+where,
		filter.EventType, nullInt64(filter.UserID)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, user_id, details, ip_address, user_agent, created_at
		FROM audit_log `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, filter.EventType, nullInt64(filter.UserID), limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry   AuditEntry
			userID  sql.NullInt64
			details []byte
		)
		if err := rows.Scan(&entry.ID, &entry.EventType, &userID, &details, &entry.IPAddress, &entry.UserAgent, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.UserID = nullInt64Ptr(userID)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, 0, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, total, nil
}

// translate folds Postgres integrity errors into the package sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s: %w", ErrDuplicate, pgErr.ConstraintName, err)
	case "23503", "23514":
		return fmt.Errorf("%w: %s: %w", ErrConstraint, pgErr.ConstraintName, err)
	default:
		return err
	}
}

func expectAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", what, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func affectedCount(result sql.Result, what string) (int, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows: %w", what, err)
	}
	return int(affected), nil
}

func likePattern(search string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(search) + "%"
}

func nullInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func nullInt64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	v := value.Int64
	return &v
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}
