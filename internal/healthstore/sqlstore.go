package healthstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"   // registers the "postgres" driver
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/rshade/healthbridge/internal/logging"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures Open.
type Options struct {
	// Driver is DriverSQLite (default) or DriverPostgres.
	Driver string
	// DSN is a file path or ":memory:" for SQLite, a connection URL for PostgreSQL.
	DSN string
	// EnforcePermissions makes ReadRange, Aggregate and the changes API fail
	// for ungranted types.
	EnforcePermissions bool
	// ChangesPageSize caps the changes returned by one Changes call.
	// Zero means DefaultChangesPageSize.
	ChangesPageSize int
	// ChangesTokenTTL is how long a changes token stays usable.
	// Zero means DefaultChangesTokenTTL.
	ChangesTokenTTL time.Duration
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db        *sql.DB
	driver    string
	enforce   bool
	pageSize  int
	changeTTL time.Duration
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database and creates the schema.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrStoreUnavailable, driver)
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("%w: empty data source", ErrStoreUnavailable)
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if err = CreateSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	logging.FromContext(ctx).Debug().Ctx(ctx).
		Str("component", "healthstore").
		Str("driver", driver).
		Bool("enforce_permissions", opts.EnforcePermissions).
		Msg("health store opened")

	store := &SQLStore{
		db:        db,
		driver:    driver,
		enforce:   opts.EnforcePermissions,
		pageSize:  opts.ChangesPageSize,
		changeTTL: opts.ChangesTokenTTL,
	}
	if store.pageSize <= 0 {
		store.pageSize = DefaultChangesPageSize
	}
	if store.changeTTL <= 0 {
		store.changeTTL = DefaultChangesTokenTTL
	}
	return store, nil
}

// OpenSQLite opens a SQLite store at path.
func OpenSQLite(ctx context.Context, path string, enforcePermissions bool) (*SQLStore, error) {
	return Open(ctx, Options{Driver: DriverSQLite, DSN: path, EnforcePermissions: enforcePermissions})
}

// Close releases the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ReadRange implements Store.
func (s *SQLStore) ReadRange(
	ctx context.Context,
	t RecordType,
	start, end time.Time,
	ascending bool,
) ([]HealthRecord, error) {
	if err := s.checkRead(ctx, t, start, end); err != nil {
		return nil, err
	}

	order := "DESC"
	if ascending {
		order = "ASC"
	}
	query := s.rebind(`SELECT id, record_type, start_time, end_time, value, unit, title, notes
		FROM health_record
		WHERE record_type = ? AND start_time >= ? AND start_time < ?
		ORDER BY start_time ` + order + `, id ` + order)

	rows, err := s.db.QueryContext(ctx, query, string(t), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrStoreUnavailable, t, err)
	}
	defer rows.Close()

	var records []HealthRecord
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrStoreUnavailable, t, err)
	}
	return records, nil
}

// Aggregate implements Store. KindDuration sums End-Start in seconds over records
// lying entirely inside the range; the other kinds combine Value over records
// starting inside it.
func (s *SQLStore) Aggregate(ctx context.Context, m Metric, start, end time.Time) (float64, error) {
	if err := s.checkRead(ctx, m.Type, start, end); err != nil {
		return 0, err
	}

	var expr, where string
	switch m.Kind {
	case KindDuration:
		expr = "SUM(end_time - start_time) / 1000.0"
		where = "start_time >= ? AND end_time <= ?"
	case KindSum:
		expr, where = "SUM(value)", "start_time >= ? AND start_time < ?"
	case KindAvg:
		expr, where = "AVG(value)", "start_time >= ? AND start_time < ?"
	case KindMin:
		expr, where = "MIN(value)", "start_time >= ? AND start_time < ?"
	case KindMax:
		expr, where = "MAX(value)", "start_time >= ? AND start_time < ?"
	default:
		return 0, fmt.Errorf("unsupported aggregate kind %q", m.Kind)
	}

	query := s.rebind("SELECT " + expr + " FROM health_record WHERE record_type = ? AND " + where)
	var result sql.NullFloat64
	err := s.db.QueryRowContext(ctx, query, string(m.Type), start.UnixMilli(), end.UnixMilli()).Scan(&result)
	if err != nil {
		return 0, fmt.Errorf("%w: aggregating %s: %w", ErrStoreUnavailable, m.Name, err)
	}
	return result.Float64, nil
}

// HasPermissions implements Store.
func (s *SQLStore) HasPermissions(ctx context.Context, perms []Permission) (bool, error) {
	granted, err := s.GrantedPermissions(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if _, ok := granted[p]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// RequestPermissions implements Store. The local store has no user to ask, so
// every requested permission is granted; callers confirm with the user first.
func (s *SQLStore) RequestPermissions(ctx context.Context, perms []Permission) error {
	now := time.Now().UnixMilli()
	query := s.rebind(`INSERT INTO permission_grant (permission, granted_at) VALUES (?, ?)
		ON CONFLICT (permission) DO NOTHING`)
	for _, p := range perms {
		if _, err := s.db.ExecContext(ctx, query, string(p), now); err != nil {
			return fmt.Errorf("%w: granting %s: %w", ErrStoreUnavailable, p, err)
		}
	}
	return nil
}

// RevokePermissions removes grants.
func (s *SQLStore) RevokePermissions(ctx context.Context, perms []Permission) error {
	query := s.rebind(`DELETE FROM permission_grant WHERE permission = ?`)
	for _, p := range perms {
		if _, err := s.db.ExecContext(ctx, query, string(p)); err != nil {
			return fmt.Errorf("%w: revoking %s: %w", ErrStoreUnavailable, p, err)
		}
	}
	return nil
}

// GrantedPermissions returns the set of granted permissions.
func (s *SQLStore) GrantedPermissions(ctx context.Context) (map[Permission]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT permission FROM permission_grant`)
	if err != nil {
		return nil, fmt.Errorf("%w: reading grants: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	granted := map[Permission]struct{}{}
	for rows.Next() {
		var p string
		if err = rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("%w: reading grants: %w", ErrStoreUnavailable, err)
		}
		granted[Permission(p)] = struct{}{}
	}
	return granted, rows.Err()
}

// Insert stores records in one transaction. Records without an ID get a new one.
func (s *SQLStore) Insert(ctx context.Context, records ...HealthRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO health_record
		(id, record_type, start_time, end_time, value, unit, title, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer stmt.Close()

	logStmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO record_change
		(record_type, record_id, deleted, changed_at) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer logStmt.Close()

	now := time.Now().UnixMilli()
	for _, r := range records {
		if !r.Type.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownRecordType, r.Type)
		}
		if r.End.Before(r.Start) {
			return fmt.Errorf("%w: record ends before it starts", ErrInvalidRange)
		}
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.Unit == "" {
			r.Unit = r.Type.Unit()
		}
		if _, err = stmt.ExecContext(ctx, r.ID.String(), string(r.Type), r.Start.UnixMilli(), r.End.UnixMilli(),
			r.Value, r.Unit, r.Title, r.Notes); err != nil {
			return fmt.Errorf("%w: inserting %s: %w", ErrStoreUnavailable, r.Type, err)
		}
		if _, err = logStmt.ExecContext(ctx, string(r.Type), r.ID.String(), false, now); err != nil {
			return fmt.Errorf("%w: logging change for %s: %w", ErrStoreUnavailable, r.Type, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteAll removes every record of t and returns how many were deleted. Each
// deletion is recorded in the change log.
func (s *SQLStore) DeleteAll(ctx context.Context, t RecordType) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO record_change (record_type, record_id, deleted, changed_at)
		SELECT record_type, id, ?, ? FROM health_record WHERE record_type = ?`),
		true, time.Now().UnixMilli(), string(t)); err != nil {
		return 0, fmt.Errorf("%w: logging deletes of %s: %w", ErrStoreUnavailable, t, err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM health_record WHERE record_type = ?`), string(t))
	if err != nil {
		return 0, fmt.Errorf("%w: deleting %s: %w", ErrStoreUnavailable, t, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: deleting %s: %w", ErrStoreUnavailable, t, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Counts returns the number of stored records per type.
func (s *SQLStore) Counts(ctx context.Context) (map[RecordType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_type, COUNT(*) FROM health_record GROUP BY record_type`)
	if err != nil {
		return nil, fmt.Errorf("%w: counting records: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	counts := map[RecordType]int{}
	for rows.Next() {
		var t string
		var n int
		if err = rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("%w: counting records: %w", ErrStoreUnavailable, err)
		}
		counts[RecordType(t)] = n
	}
	return counts, rows.Err()
}

func (s *SQLStore) checkRead(ctx context.Context, t RecordType, start, end time.Time) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRecordType, t)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return s.checkPermission(ctx, t)
}

func (s *SQLStore) checkPermission(ctx context.Context, t RecordType) error {
	if !s.enforce {
		return nil
	}
	ok, err := s.HasPermissions(ctx, []Permission{ReadPermission(t)})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, ReadPermission(t))
	}
	return nil
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (HealthRecord, error) {
	var (
		id, typ                string
		startMillis, endMillis int64
		rec                    HealthRecord
	)
	if err := row.Scan(&id, &typ, &startMillis, &endMillis, &rec.Value, &rec.Unit, &rec.Title, &rec.Notes); err != nil {
		return rec, fmt.Errorf("%w: scanning record: %w", ErrStoreUnavailable, err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return rec, fmt.Errorf("%w: record id %q: %w", ErrStoreUnavailable, id, err)
	}
	rec.ID = parsed
	rec.Type = RecordType(typ)
	rec.Start = time.UnixMilli(startMillis).UTC()
	rec.End = time.UnixMilli(endMillis).UTC()
	return rec, nil
}
