package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/philp97/frontier/internal/portfolio"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	assets     TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date   TEXT NOT NULL,
	params     TEXT NOT NULL,
	result     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at)`

// createdLayout is fixed width so created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Summary describes a stored run without its result payload.
type Summary struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Assets    []string         `json:"assets"`
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
	Params    portfolio.Params `json:"params"`
}

// Run is a stored analytics result.
type Run struct {
	Summary
	Result *portfolio.AllocationResult `json:"result"`
}

type runRow struct {
	ID        string `db:"id"`
	CreatedAt string `db:"created_at"`
	Assets    string `db:"assets"`
	StartDate string `db:"start_date"`
	EndDate   string `db:"end_date"`
	Params    string `db:"params"`
	Result    string `db:"result"`
}

// Store persists run history in sqlite or postgres.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

// Open connects with driver ("sqlite" or "postgres") and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one connection keeps :memory: databases and write locking sane
		db.SetMaxOpenConns(1)
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open connection and migrates it.
func New(ctx context.Context, db *sqlx.DB) (*Store, error) {
	s := &Store{db: db, timeout: 10 * time.Second, now: time.Now}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", db.DriverName(), err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save stores res under a new id and returns its summary.
func (s *Store) Save(ctx context.Context, res *portfolio.AllocationResult) (*Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	assets, err := json.Marshal(res.Assets)
	if err != nil {
		return nil, fmt.Errorf("marshal assets: %w", err)
	}
	params, err := json.Marshal(res.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	result, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	row := runRow{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC().Format(createdLayout),
		Assets:    string(assets),
		StartDate: res.StartDate.Format(time.DateOnly),
		EndDate:   res.EndDate.Format(time.DateOnly),
		Params:    string(params),
		Result:    string(result),
	}
	query := s.db.Rebind(`INSERT INTO runs (id, created_at, assets, start_date, end_date, params, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		row.ID, row.CreatedAt, row.Assets, row.StartDate, row.EndDate, row.Params, row.Result); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return row.summary()
}

// Get loads a run by id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select run %s: %w", id, err)
	}

	sum, err := row.summary()
	if err != nil {
		return nil, err
	}
	run := &Run{Summary: *sum}
	if err := json.Unmarshal([]byte(row.Result), &run.Result); err != nil {
		return nil, fmt.Errorf("decode result of %s: %w", id, err)
	}
	return run, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, created_at, assets, start_date, end_date, params, '' AS result
		FROM runs
		ORDER BY created_at DESC, id
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		sum, err := r.summary()
		if err != nil {
			return nil, err
		}
		out = append(out, *sum)
	}
	return out, nil
}

func (r runRow) summary() (*Summary, error) {
	sum := &Summary{ID: r.ID}
	var err error
	if sum.CreatedAt, err = time.Parse(createdLayout, r.CreatedAt); err != nil {
		return nil, fmt.Errorf("run %s created_at: %w", r.ID, err)
	}
	if sum.StartDate, err = time.Parse(time.DateOnly, r.StartDate); err != nil {
		return nil, fmt.Errorf("run %s start_date: %w", r.ID, err)
	}
	if sum.EndDate, err = time.Parse(time.DateOnly, r.EndDate); err != nil {
		return nil, fmt.Errorf("run %s end_date: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Assets), &sum.Assets); err != nil {
		return nil, fmt.Errorf("run %s assets: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Params), &sum.Params); err != nil {
		return nil, fmt.Errorf("run %s params: %w", r.ID, err)
	}
	return sum, nil
}
