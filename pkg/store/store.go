// Package store persists hands in sqlite. Writes are guarded by a version
// column for optimistic concurrency, and every accepted write is offered to
// the registered change sinks with its old and new image.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/mattn/go-sqlite3"

	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/feed"
	"github.com/stakeside/cashgame/pkg/hand"
)

// DB holds the database connection and the change sinks.
type DB struct {
	db    *sql.DB
	sinks []feed.Sink

	// tableMtx serializes write+emit per table so sinks see a table's
	// changes in commit order.
	mtx      sync.Mutex
	tableMtx map[string]*sync.Mutex
}

// Open opens (creating if necessary) the hand database at dbPath.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, tableMtx: make(map[string]*sync.Mutex)}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS hands (
			table_addr TEXT NOT NULL,
			hand_id INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			data TEXT NOT NULL,
			PRIMARY KEY (table_addr, hand_id)
		)
	`)
	return err
}

// AddSink registers a change sink. Not safe to call once writes started.
func (d *DB) AddSink(s feed.Sink) {
	d.sinks = append(d.sinks, s)
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) emit(ch feed.Change) {
	for _, s := range d.sinks {
		s.Offer(ch)
	}
}

func (d *DB) lockTable(tableAddr string) *sync.Mutex {
	d.mtx.Lock()
	l, ok := d.tableMtx[tableAddr]
	if !ok {
		l = new(sync.Mutex)
		d.tableMtx[tableAddr] = l
	}
	d.mtx.Unlock()
	l.Lock()
	return l
}

// LastHand returns the table's highest hand and its row version.
func (d *DB) LastHand(ctx context.Context, tableAddr string) (*hand.Hand, int64, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT data, version FROM hands WHERE table_addr = ? ORDER BY hand_id DESC LIMIT 1`,
		tableAddr)
	return scanHand(row, tableAddr)
}

// Hand returns one hand of a table and its row version.
func (d *DB) Hand(ctx context.Context, tableAddr string, handID uint32) (*hand.Hand, int64, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT data, version FROM hands WHERE table_addr = ? AND hand_id = ?`,
		tableAddr, handID)
	return scanHand(row, tableAddr)
}

func scanHand(row *sql.Row, tableAddr string) (*hand.Hand, int64, error) {
	var data string
	var version int64
	if err := row.Scan(&data, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, errorsmod.Wrapf(errs.ErrNotFound, "table with addr %s", tableAddr)
		}
		return nil, 0, err
	}
	var h hand.Hand
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, 0, err
	}
	return &h, version, nil
}

// Insert stores a new hand at version 1 and emits an insert change. A hand
// that already exists fails with ErrConflict.
func (d *DB) Insert(ctx context.Context, h *hand.Hand) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	l := d.lockTable(h.TableAddr)
	defer l.Unlock()
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO hands (table_addr, hand_id, version, data) VALUES (?, ?, 1, ?)`,
		h.TableAddr, h.HandID, string(data))
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.Code == sqlite3.ErrConstraint {
			return errorsmod.Wrapf(errs.ErrConflict, "hand %d exists already", h.HandID)
		}
		return err
	}
	d.emit(feed.Change{Kind: feed.KindInsert, TableAddr: h.TableAddr, New: h.Clone()})
	return nil
}

// Update replaces a hand's stored image if its version still matches, and
// emits a modify change carrying the replaced image. A version mismatch
// fails with ErrConflict and writes nothing.
func (d *DB) Update(ctx context.Context, h *hand.Hand, version int64) error {
	l := d.lockTable(h.TableAddr)
	defer l.Unlock()
	old, _, err := d.Hand(ctx, h.TableAddr, h.HandID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE hands SET data = ?, version = version + 1
		 WHERE table_addr = ? AND hand_id = ? AND version = ?`,
		string(data), h.TableAddr, h.HandID, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errorsmod.Wrapf(errs.ErrConflict,
			"hand %d version %d is stale", h.HandID, version)
	}
	d.emit(feed.Change{Kind: feed.KindModify, TableAddr: h.TableAddr, Old: old, New: h.Clone()})
	return nil
}
