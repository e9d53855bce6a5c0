package discovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Candidate is a device heard while discovery was active.
type Candidate struct {
	Family    string    `json:"family"`
	Address   string    `json:"address"`
	Bridge    string    `json:"bridge"`
	Hint      string    `json:"hint"`
	Label     string    `json:"label"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	SeenCount int64     `json:"seen_count"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Bridge string
	Family string
	Limit  int
}

// Logger is the logging interface used by the store.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

const defaultListLimit = 500

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store records discovery candidates in SQLite.
//
// Thread Safety: All methods are safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger Logger

	upsertStmt *sql.Stmt
	stmtMu     sync.Mutex

	now func() time.Time
}

// NewStore creates a store on db. The discovered_devices table must exist
// (see the migrations package).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Start prepares the upsert statement. Record fails until Start succeeds.
func (s *Store) Start(ctx context.Context) error {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	if s.upsertStmt != nil {
		return nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO discovered_devices
			(family, address, bridge, hint, label, first_seen, last_seen, seen_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(family, address) DO UPDATE SET
			bridge     = excluded.bridge,
			hint       = excluded.hint,
			label      = excluded.label,
			last_seen  = excluded.last_seen,
			seen_count = seen_count + 1
	`)
	if err != nil {
		return fmt.Errorf("preparing candidate upsert: %w", err)
	}
	s.upsertStmt = stmt
	s.log("discovery store started")
	return nil
}

// Stop releases the prepared statement. Later Record calls fail with
// ErrNotStarted.
func (s *Store) Stop() {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	if s.upsertStmt != nil {
		s.upsertStmt.Close() //nolint:errcheck // shutdown
		s.upsertStmt = nil
	}
}

// Record upserts c. FirstSeen and SeenCount are managed by the store; a
// zero LastSeen is replaced with the current time.
func (s *Store) Record(ctx context.Context, c Candidate) error {
	if c.Family == "" || c.Address == "" {
		return fmt.Errorf("%w: family and address are required", ErrInvalidCandidate)
	}

	s.stmtMu.Lock()
	stmt := s.upsertStmt
	s.stmtMu.Unlock()
	if stmt == nil {
		return ErrNotStarted
	}

	seen := c.LastSeen
	if seen.IsZero() {
		seen = s.now()
	}
	at := seen.UTC().Format(timeLayout)

	_, err := stmt.ExecContext(ctx,
		strings.ToLower(c.Family), strings.ToLower(c.Address),
		c.Bridge, c.Hint, c.Label, at, at)
	if err != nil {
		s.logError("recording candidate", err)
		return fmt.Errorf("recording candidate %s:%s: %w", c.Family, c.Address, err)
	}
	return nil
}

// List returns candidates, most recently seen first.
func (s *Store) List(ctx context.Context, f Filter) ([]Candidate, error) {
	var (
		where []string
		args  []any
	)
	if f.Bridge != "" {
		where = append(where, "bridge = ?")
		args = append(args, f.Bridge)
	}
	if f.Family != "" {
		where = append(where, "family = ?")
		args = append(args, strings.ToLower(f.Family))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT family, address, bridge, hint, label, first_seen, last_seen, seen_count
		FROM discovered_devices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_seen DESC, family, address LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	candidates := []Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}
	return candidates, nil
}

// Get returns one candidate.
func (s *Store) Get(ctx context.Context, family, address string) (Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT family, address, bridge, hint, label, first_seen, last_seen, seen_count
		FROM discovered_devices WHERE family = ? AND address = ?`,
		strings.ToLower(family), strings.ToLower(address))

	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Candidate{}, ErrNotFound
	}
	return c, err
}

// Dismiss deletes a candidate.
func (s *Store) Dismiss(ctx context.Context, family, address string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM discovered_devices WHERE family = ? AND address = ?",
		strings.ToLower(family), strings.ToLower(address))
	if err != nil {
		return fmt.Errorf("dismissing candidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dismissing candidate: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored candidates.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM discovered_devices").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting candidates: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row scanner) (Candidate, error) {
	var (
		c           Candidate
		first, last string
	)
	if err := row.Scan(&c.Family, &c.Address, &c.Bridge, &c.Hint, &c.Label, &first, &last, &c.SeenCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Candidate{}, err
		}
		return Candidate{}, fmt.Errorf("scanning candidate: %w", err)
	}
	c.FirstSeen, _ = time.Parse(timeLayout, first) //nolint:errcheck // written by Record
	c.LastSeen, _ = time.Parse(timeLayout, last)   //nolint:errcheck // written by Record
	return c, nil
}

func (s *Store) log(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Info(msg, keysAndValues...)
	}
}

func (s *Store) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, "error", err)
	}
}
