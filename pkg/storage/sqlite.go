package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/types"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cloud_accounts (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	provider     TEXT NOT NULL,
	region       TEXT NOT NULL DEFAULT '',
	credentials  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS servers (
	id               TEXT PRIMARY KEY,
	workspace_id     TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	provider         TEXT NOT NULL,
	instance_id      TEXT NOT NULL DEFAULT '',
	region           TEXT NOT NULL DEFAULT '',
	instance_type    TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT '',
	cloud_account_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS schedules (
	id              TEXT PRIMARY KEY,
	workspace_id    TEXT NOT NULL,
	server_id       TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL,
	rrule           TEXT NOT NULL,
	timezone        TEXT NOT NULL DEFAULT 'UTC',
	next_run_at     INTEGER NOT NULL,
	last_run_at     INTEGER,
	enabled         INTEGER NOT NULL DEFAULT 1,
	execution_count INTEGER NOT NULL DEFAULT 0,
	scaling         TEXT NOT NULL DEFAULT '{}',
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules (enabled, next_run_at);
CREATE INDEX IF NOT EXISTS idx_schedules_workspace ON schedules (workspace_id, server_id);

CREATE TABLE IF NOT EXISTS schedule_executions (
	id          TEXT PRIMARY KEY,
	schedule_id TEXT NOT NULL,
	action      TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	executed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_schedule ON schedule_executions (schedule_id, executed_at);

CREATE TABLE IF NOT EXISTS hourly_traffic (
	server_id    TEXT NOT NULL,
	hour         INTEGER NOT NULL,
	avg_in_mbps  REAL NOT NULL,
	avg_out_mbps REAL NOT NULL,
	max_in_mbps  REAL NOT NULL,
	max_out_mbps REAL NOT NULL,
	samples      INTEGER NOT NULL,
	PRIMARY KEY (server_id, hour)
);
`

const scheduleColumns = `id, workspace_id, server_id, name, action, rrule, timezone, next_run_at,
	last_run_at, enabled, execution_count, scaling, created_at, updated_at`

// SQLStore implements Store on SQLite through database/sql.
// Timestamps are stored as Unix nanoseconds, traffic hours as Unix seconds.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (and if needed creates) a SQLite database. dsn is a file
// path or ":memory:".
func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping verifies the connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*types.Schedule, error) {
	var (
		sc                        types.Schedule
		action, scaling           string
		nextRun, created, updated int64
		lastRun                   sql.NullInt64
		enabled                   bool
	)
	err := row.Scan(&sc.ID, &sc.WorkspaceID, &sc.ServerID, &sc.Name, &action, &sc.RRule,
		&sc.Timezone, &nextRun, &lastRun, &enabled, &sc.ExecutionCount, &scaling, &created, &updated)
	if err != nil {
		return nil, err
	}

	sc.Action = types.Action(action)
	sc.NextRunAt = fromNanos(nextRun)
	if lastRun.Valid {
		t := fromNanos(lastRun.Int64)
		sc.LastRunAt = &t
	}
	sc.Enabled = enabled
	sc.CreatedAt = fromNanos(created)
	sc.UpdatedAt = fromNanos(updated)
	if err := json.Unmarshal([]byte(scaling), &sc.Scaling); err != nil {
		return nil, fmt.Errorf("decode scaling of schedule %s: %w", sc.ID, err)
	}
	return &sc, nil
}

func scheduleArgs(sc *types.Schedule) ([]any, error) {
	scaling, err := json.Marshal(sc.Scaling)
	if err != nil {
		return nil, err
	}
	var lastRun sql.NullInt64
	if sc.LastRunAt != nil {
		lastRun = sql.NullInt64{Int64: toNanos(*sc.LastRunAt), Valid: true}
	}
	return []any{
		sc.ID, sc.WorkspaceID, sc.ServerID, sc.Name, string(sc.Action), sc.RRule, sc.Timezone,
		toNanos(sc.NextRunAt), lastRun, sc.Enabled, sc.ExecutionCount, string(scaling),
		toNanos(sc.CreatedAt), toNanos(sc.UpdatedAt),
	}, nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// Schedule operations
func (s *SQLStore) CreateSchedule(ctx context.Context, schedule *types.Schedule) error {
	args, err := scheduleArgs(schedule)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	return err
}

func (s *SQLStore) GetSchedule(ctx context.Context, id string) (*types.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if err != nil {
		return nil, notFound(err, "schedule", id)
	}
	return sc, nil
}

func (s *SQLStore) ListSchedules(ctx context.Context, workspaceID, serverID string) ([]*types.Schedule, error) {
	var (
		where []string
		args  []any
	)
	if workspaceID != "" {
		where = append(where, "workspace_id = ?")
		args = append(args, workspaceID)
	}
	if serverID != "" {
		where = append(where, "server_id = ?")
		args = append(args, serverID)
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY next_run_at, id"

	return s.querySchedules(ctx, query, args...)
}

func (s *SQLStore) querySchedules(ctx context.Context, query string, args ...any) ([]*types.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*types.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

func (s *SQLStore) UpdateSchedule(ctx context.Context, schedule *types.Schedule) error {
	args, err := scheduleArgs(schedule)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET workspace_id = ?, server_id = ?, name = ?, action = ?, rrule = ?,
			timezone = ?, next_run_at = ?, last_run_at = ?, enabled = ?, execution_count = ?,
			scaling = ?, created_at = ?, updated_at = ?
		WHERE id = ?`,
		append(args[1:], schedule.ID)...)
	if err != nil {
		return err
	}
	return requireAffected(res, "schedule", schedule.ID)
}

func (s *SQLStore) DeleteSchedule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, "schedule", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_executions WHERE schedule_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ListDueSchedules(ctx context.Context, until time.Time) ([]*types.DueSchedule, error) {
	schedules, err := s.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1 AND next_run_at <= ? ORDER BY next_run_at, id`,
		toNanos(until))
	if err != nil {
		return nil, err
	}

	due := make([]*types.DueSchedule, 0, len(schedules))
	for _, sc := range schedules {
		d := &types.DueSchedule{Schedule: sc}
		server, err := s.GetServer(ctx, sc.ServerID)
		switch {
		case err == nil:
			d.Server = server
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		if d.Server != nil && d.Server.CloudAccountID != "" {
			account, err := s.GetCloudAccount(ctx, d.Server.CloudAccountID)
			switch {
			case err == nil:
				d.CloudAccount = account
			case !errors.Is(err, ErrNotFound):
				return nil, err
			}
		}
		due = append(due, d)
	}
	return due, nil
}

func (s *SQLStore) AdvanceSchedule(ctx context.Context, id string, next, ranAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET next_run_at = ?, last_run_at = ?, execution_count = execution_count + 1, updated_at = ?
		WHERE id = ?`,
		toNanos(next), toNanos(ranAt), toNanos(ranAt), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "schedule", id)
}

func (s *SQLStore) DisableSchedule(ctx context.Context, id string, ranAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET enabled = 0, last_run_at = ?, execution_count = execution_count + 1, updated_at = ?
		WHERE id = ?`,
		toNanos(ranAt), toNanos(ranAt), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "schedule", id)
}

func (s *SQLStore) AdvanceMissed(ctx context.Context, id string, next time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET next_run_at = ?, updated_at = ? WHERE id = ?`,
		toNanos(next), toNanos(time.Now()), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "schedule", id)
}

// Execution operations
func (s *SQLStore) RecordExecution(ctx context.Context, e *types.ScheduleExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_executions (id, schedule_id, action, status, error, duration_ms, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ScheduleID, string(e.Action), string(e.Status), e.Error, e.DurationMs, toNanos(e.ExecutedAt))
	return err
}

func (s *SQLStore) ListExecutions(ctx context.Context, scheduleID string, limit int) ([]*types.ScheduleExecution, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, action, status, error, duration_ms, executed_at
		FROM schedule_executions WHERE schedule_id = ?
		ORDER BY executed_at DESC, id DESC LIMIT ?`,
		scheduleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*types.ScheduleExecution
	for rows.Next() {
		var (
			e              types.ScheduleExecution
			action, status string
			executedAt     int64
		)
		if err := rows.Scan(&e.ID, &e.ScheduleID, &action, &status, &e.Error, &e.DurationMs, &executedAt); err != nil {
			return nil, err
		}
		e.Action = types.Action(action)
		e.Status = types.ExecutionStatus(status)
		e.ExecutedAt = fromNanos(executedAt)
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// Server operations
const serverColumns = `id, workspace_id, name, provider, instance_id, region, instance_type, status, cloud_account_id`

func scanServer(row rowScanner) (*types.Server, error) {
	var (
		sv       types.Server
		provider string
	)
	err := row.Scan(&sv.ID, &sv.WorkspaceID, &sv.Name, &provider, &sv.InstanceID, &sv.Region,
		&sv.InstanceType, &sv.Status, &sv.CloudAccountID)
	if err != nil {
		return nil, err
	}
	sv.Provider = types.Provider(provider)
	return &sv, nil
}

func (s *SQLStore) PutServer(ctx context.Context, sv *types.Server) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (`+serverColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET workspace_id = excluded.workspace_id, name = excluded.name,
			provider = excluded.provider, instance_id = excluded.instance_id, region = excluded.region,
			instance_type = excluded.instance_type, status = excluded.status,
			cloud_account_id = excluded.cloud_account_id`,
		sv.ID, sv.WorkspaceID, sv.Name, string(sv.Provider), sv.InstanceID, sv.Region,
		sv.InstanceType, sv.Status, sv.CloudAccountID)
	return err
}

func (s *SQLStore) GetServer(ctx context.Context, id string) (*types.Server, error) {
	sv, err := scanServer(s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "server", id)
	}
	return sv, nil
}

func (s *SQLStore) ListServers(ctx context.Context) ([]*types.Server, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []*types.Server
	for rows.Next() {
		sv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, sv)
	}
	return servers, rows.Err()
}

func (s *SQLStore) UpdateServerStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE servers SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "server", id)
}

func (s *SQLStore) UpdateServerInstanceType(ctx context.Context, id, instanceType string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE servers SET instance_type = ? WHERE id = ?`, instanceType, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "server", id)
}

// Cloud account operations
func scanCloudAccount(row rowScanner) (*types.CloudAccount, error) {
	var (
		a        types.CloudAccount
		provider string
	)
	if err := row.Scan(&a.ID, &a.WorkspaceID, &provider, &a.Region, &a.Credentials); err != nil {
		return nil, err
	}
	a.Provider = types.Provider(provider)
	return &a, nil
}

func (s *SQLStore) PutCloudAccount(ctx context.Context, a *types.CloudAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cloud_accounts (id, workspace_id, provider, region, credentials) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET workspace_id = excluded.workspace_id, provider = excluded.provider,
			region = excluded.region, credentials = excluded.credentials`,
		a.ID, a.WorkspaceID, string(a.Provider), a.Region, a.Credentials)
	return err
}

func (s *SQLStore) GetCloudAccount(ctx context.Context, id string) (*types.CloudAccount, error) {
	a, err := scanCloudAccount(s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, provider, region, credentials FROM cloud_accounts WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "cloud account", id)
	}
	return a, nil
}

func (s *SQLStore) ListCloudAccounts(ctx context.Context) ([]*types.CloudAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, provider, region, credentials FROM cloud_accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*types.CloudAccount
	for rows.Next() {
		a, err := scanCloudAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Traffic operations
func (s *SQLStore) PutTraffic(ctx context.Context, points []types.HourlyTraffic) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hourly_traffic (server_id, hour, avg_in_mbps, avg_out_mbps, max_in_mbps, max_out_mbps, samples)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (server_id, hour) DO UPDATE SET avg_in_mbps = excluded.avg_in_mbps,
			avg_out_mbps = excluded.avg_out_mbps, max_in_mbps = excluded.max_in_mbps,
			max_out_mbps = excluded.max_out_mbps, samples = excluded.samples`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.ServerID, p.Hour.UTC().Unix(),
			p.AvgInMbps, p.AvgOutMbps, p.MaxInMbps, p.MaxOutMbps, p.Samples); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ListTraffic(ctx context.Context, serverID string, since time.Time) ([]types.HourlyTraffic, error) {
	var from int64
	if !since.IsZero() {
		from = since.UTC().Unix()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id, hour, avg_in_mbps, avg_out_mbps, max_in_mbps, max_out_mbps, samples
		FROM hourly_traffic WHERE server_id = ? AND hour >= ? ORDER BY hour`,
		serverID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []types.HourlyTraffic
	for rows.Next() {
		var (
			p    types.HourlyTraffic
			hour int64
		)
		if err := rows.Scan(&p.ServerID, &hour, &p.AvgInMbps, &p.AvgOutMbps, &p.MaxInMbps, &p.MaxOutMbps, &p.Samples); err != nil {
			return nil, err
		}
		p.Hour = time.Unix(hour, 0).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}
