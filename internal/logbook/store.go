// Package logbook is the persistent, uniquely numbered collection of contacts.
//
// Callers serialize access: no two mutations may be in flight at once. The
// store keeps a single connection for the life of the process and must be
// closed on every exit path.
package logbook

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/db"
	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/qso"
	"github.com/w9en/qsolog/internal/station"
)

// Route is the outcome of the insert-vs-update policy.
type Route string

const (
	RouteCreate Route = "create"
	RouteUpdate Route = "update"
)

// Store is the logbook.
type Store struct {
	db      *sql.DB
	station *station.Context
	log     *zap.Logger
}

// New wraps an initialised database. A nil logger disables logging.
func New(database *sql.DB, st *station.Context, logger *zap.Logger) *Store {
	if st == nil {
		st = station.New("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: database, station: st, log: logger}
}

// Open initialises the database under baseDir and returns a store stamping
// new candidates with grid.
func Open(baseDir, grid string, logger *zap.Logger) (*Store, error) {
	database, err := db.Init(baseDir)
	if err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	return New(database, station.New(grid), logger), nil
}

// Logger returns the store's logger for operations built on top of it.
func (s *Store) Logger() *zap.Logger {
	return s.log
}

// Close flushes the write-ahead log and releases the connection.
func (s *Store) Close() error {
	if err := db.Checkpoint(context.Background(), s.db); err != nil {
		s.log.Warn("checkpoint before close failed", zap.Error(err))
	}
	return s.db.Close()
}

// LastID returns the highest stored identifier, or 0 when the logbook is empty.
func (s *Store) LastID(ctx context.Context) (int64, error) {
	return db.LastID(ctx, s.db)
}

// Count returns the number of stored contacts.
func (s *Store) Count(ctx context.Context) (int, error) {
	return db.Count(ctx, s.db)
}

// Create persists r as a new contact. r.ID must be greater than LastID.
// r is normalised in place first, as on every write path.
func (s *Store) Create(ctx context.Context, r *qso.Record) error {
	return s.InTx(ctx, func(tx *Tx) error {
		return tx.Create(ctx, r)
	})
}

// Update normalises r and replaces every field of the stored contact with
// id r.ID.
func (s *Store) Update(ctx context.Context, r *qso.Record) error {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return err
	}
	if err := db.UpdateByID(ctx, s.db, r); err != nil {
		return err
	}
	s.log.Debug("contact updated", zap.Int64("id", r.ID), zap.String("call", r.Callsign))
	return nil
}

// Fetch returns the contact with the given id.
func (s *Store) Fetch(ctx context.Context, id int64) (*qso.Record, error) {
	return db.GetByID(ctx, s.db, id)
}

// Delete removes the contact with the given id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := db.DeleteByID(ctx, s.db, id); err != nil {
		return err
	}
	s.log.Debug("contact deleted", zap.Int64("id", id))
	return nil
}

// Recent returns the limit most recently dated contacts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*qso.Record, error) {
	if limit <= 0 {
		return nil, errors.NewInvalidRequest("limit must be positive").WithDetail("limit", limit)
	}
	return db.Recent(ctx, s.db, limit)
}

// FindByCallsign returns contacts with exactly the given callsign, ordered like Recent.
func (s *Store) FindByCallsign(ctx context.Context, call string, limit int) ([]*qso.Record, error) {
	if limit <= 0 {
		return nil, errors.NewInvalidRequest("limit must be positive").WithDetail("limit", limit)
	}
	call = strings.ToUpper(strings.TrimSpace(call))
	if call == "" {
		return nil, errors.NewInvalidRequest("callsign is required")
	}
	return db.FindByCallsign(ctx, s.db, call, limit)
}

// SetStationGrid changes the grid stamped on future candidates. Stored
// contacts keep the grid they were logged with.
func (s *Store) SetStationGrid(grid string) {
	s.station.Set(grid)
	s.log.Info("station grid changed", zap.String("grid", s.station.Grid()))
}

// StationGrid returns the grid stamped on new candidates.
func (s *Store) StationGrid() string {
	return s.station.Grid()
}

// Candidate returns an empty record carrying the next identifier and the
// current station grid.
func (s *Store) Candidate(ctx context.Context) (*qso.Record, error) {
	last, err := s.LastID(ctx)
	if err != nil {
		return nil, err
	}
	return &qso.Record{ID: last + 1, MyGrid: s.station.Grid()}, nil
}

// Route applies the insert-vs-update policy: an id beyond LastID is a new
// contact, anything else edits an existing one.
func (s *Store) Route(ctx context.Context, r *qso.Record) (Route, error) {
	last, err := s.LastID(ctx)
	if err != nil {
		return "", err
	}
	if r.ID > last {
		return RouteCreate, nil
	}
	return RouteUpdate, nil
}

// Save routes r and applies it, returning the route taken.
func (s *Store) Save(ctx context.Context, r *qso.Record) (Route, error) {
	route, err := s.Route(ctx, r)
	if err != nil {
		return "", err
	}
	switch route {
	case RouteCreate:
		err = s.Create(ctx, r)
	default:
		err = s.Update(ctx, r)
	}
	if err != nil {
		return "", err
	}
	return route, nil
}

// InTx runs fn inside one transaction. fn's error, or a failed commit, rolls
// everything back.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(&Tx{q: sqlTx, log: s.log}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return errors.NewStoreUnavailable(err)
	}
	return nil
}

// Tx is the subset of store operations available inside InTx.
type Tx struct {
	q   db.Querier
	log *zap.Logger
}

// LastID is Store.LastID as seen by the transaction.
func (t *Tx) LastID(ctx context.Context) (int64, error) {
	return db.LastID(ctx, t.q)
}

// Create normalises and validates r, then inserts it. r.ID must be greater
// than LastID.
func (t *Tx) Create(ctx context.Context, r *qso.Record) error {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return err
	}
	last, err := db.LastID(ctx, t.q)
	if err != nil {
		return err
	}
	if r.ID <= last {
		return errors.NewIDNotGreater(r.ID, last)
	}
	if err := db.Insert(ctx, t.q, r); err != nil {
		return err
	}
	t.log.Debug("contact created", zap.Int64("id", r.ID), zap.String("call", r.Callsign))
	return nil
}

// All returns every contact in ascending id order.
func (t *Tx) All(ctx context.Context) ([]*qso.Record, error) {
	return db.ListAll(ctx, t.q)
}
