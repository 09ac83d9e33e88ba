// Package catalog keeps a ledger of regridding runs and the per-unit outcome
// of every run in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rtm0/tecgrid/internal/regrid"
)

// Unit outcome statuses.
const (
	StatusResolved = "resolved"
	StatusPartial  = "partial"
	StatusMissing  = "missing"
)

// Run is one regridding request.
type Run struct {
	ID        string
	CreatedAt time.Time
	Dataset   string
	Start     time.Time
	End       time.Time
	Cadence   time.Duration
	Output    string

	Files        int
	MissingUnits int
	PartialFiles int
	Dropped      int
	MissingCells int
}

// UnitOutcome records what happened to one calendar unit of a run.
type UnitOutcome struct {
	Unit   string
	Path   string
	Status string
}

// SqliteStore handles catalog operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore returns a store backed by the database at dbPath. The
// connection is opened and the schema created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// CreateRun stores a new run and returns its generated ID.
func (s *SqliteStore) CreateRun(ctx context.Context, r Run) (id string, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return "", fmt.Errorf("getting write connection: %w", err)
	}

	id = uuid.NewString()
	_, err = db.ExecContext(ctx, insertRunSQL,
		id,
		time.Now().UTC(),
		r.Dataset,
		r.Start.UTC(),
		r.End.UTC(),
		int64(r.Cadence/time.Second),
		sql.NullString{String: r.Output, Valid: r.Output != ""},
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// RecordReport stores the outcome of every unit of a result and the run's
// summary counts in one transaction.
func (s *SqliteStore) RecordReport(ctx context.Context, runID string, res *regrid.Result) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertUnitSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	rep := res.Report
	for _, f := range rep.Files {
		status := StatusResolved
		if slices.Contains(rep.Partial, f.Path) {
			status = StatusPartial
		}
		if _, err = stmt.ExecContext(ctx, runID, f.Unit.String(), f.Path, status); err != nil {
			return fmt.Errorf("inserting unit %s: %w", f.Unit, err)
		}
	}
	for _, u := range rep.Missing {
		if _, err = stmt.ExecContext(ctx, runID, u.String(), nil, StatusMissing); err != nil {
			return fmt.Errorf("inserting unit %s: %w", u, err)
		}
	}

	result, err := tx.ExecContext(ctx, updateRunReportSQL,
		len(rep.Files), len(rep.Missing), len(rep.Partial), rep.Dropped, res.Values.CountMissing(), runID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating run %s: %w", runID, sql.ErrNoRows)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var cadence int64
	var output sql.NullString
	err := sc.Scan(&r.ID, &r.CreatedAt, &r.Dataset, &r.Start, &r.End, &cadence, &output,
		&r.Files, &r.MissingUnits, &r.PartialFiles, &r.Dropped, &r.MissingCells)
	if err != nil {
		return nil, err
	}
	r.Cadence = time.Duration(cadence) * time.Second
	r.Output = output.String
	return &r, nil
}

// Run returns the run with the given ID.
func (s *SqliteStore) Run(ctx context.Context, id string) (*Run, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	r, err := scanRun(db.QueryRowContext(ctx, selectRunSQL, id))
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return r, nil
}

// Runs returns every run in creation order.
func (s *SqliteStore) Runs(ctx context.Context) (runs []*Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Units returns the unit outcomes of a run ordered by unit.
func (s *SqliteStore) Units(ctx context.Context, runID string) (units []UnitOutcome, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectUnitsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying units: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var u UnitOutcome
		var path sql.NullString
		if err := rows.Scan(&u.Unit, &path, &u.Status); err != nil {
			return nil, fmt.Errorf("scanning unit: %w", err)
		}
		u.Path = path.String
		units = append(units, u)
	}
	return units, rows.Err()
}

// Close closes both connections.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.writeDB != nil {
			errs = append(errs, s.writeDB.Close())
			s.writeDB = nil
		}
		if s.readDB != nil {
			errs = append(errs, s.readDB.Close())
			s.readDB = nil
		}
		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) {
		*err = errors.Join(*err, rErr)
	}
}
