// Package table implements the oracle's hand engine: it validates signed
// action receipts against the current hand, advances the state machine,
// reconciles balances against contract state, and drives the netting
// protocol that settles a table on chain.
package table

import (
	"context"
	"time"

	"github.com/decred/slog"

	"github.com/stakeside/cashgame/pkg/chain"
	"github.com/stakeside/cashgame/pkg/hand"
	"github.com/stakeside/cashgame/pkg/receipt"
)

// Store persists hands with optimistic concurrency. Update fails with
// ErrConflict when version no longer matches the stored row.
type Store interface {
	LastHand(ctx context.Context, tableAddr string) (*hand.Hand, int64, error)
	Hand(ctx context.Context, tableAddr string, handID uint32) (*hand.Hand, int64, error)
	Insert(ctx context.Context, h *hand.Hand) error
	Update(ctx context.Context, h *hand.Hand, version int64) error
}

// Helper answers lineup queries for the engine.
type Helper interface {
	InLineup(signer string, lineup []hand.Seat) int
	IsActivePlayer(lineup []hand.Seat, pos int) bool
	ActivePlayersLeft(hd *hand.Hand) int
	CountAllIns(hd *hand.Hand) int
	FindMaxBet(lineup []hand.Seat) (int, int64)
	NextActivePlayer(lineup []hand.Seat, from int) int
	WhosTurn(hd *hand.Hand) int
	IsMyTurn(hd *hand.Hand, pos int) bool
	AllDone(lineup []hand.Seat, dealer int, state hand.State, maxBet, bbFloor int64) bool
	CheckForNextHand(hd *hand.Hand) bool
}

// Config collects the collaborators a Manager needs.
type Config struct {
	Log        slog.Logger
	Store      Store
	Chain      chain.Reader
	Helper     Helper
	Receipts   *receipt.Cache
	OraclePriv string
	// Tables lists the table contracts this oracle serves.
	Tables []string
	// Now returns the current unix time; defaults to time.Now.
	Now func() int64
}

// Manager is the per-process table engine. Per-table write ordering is the
// store's concern; the Manager itself is stateless between calls and safe
// for concurrent use.
type Manager struct {
	log        slog.Logger
	store      Store
	chain      chain.Reader
	helper     Helper
	rc         *receipt.Cache
	oraclePriv string
	oracleAddr string
	tables     map[string]bool
	now        func() int64
}

// ActionTimeout is how long the seat due to act has before anyone may force
// it into sitout.
const ActionTimeout = 180

func New(cfg Config) (*Manager, error) {
	m := &Manager{
		log:    cfg.Log,
		store:  cfg.Store,
		chain:  cfg.Chain,
		helper: cfg.Helper,
		rc:     cfg.Receipts,
		now:    cfg.Now,
		tables: make(map[string]bool, len(cfg.Tables)),
	}
	if m.log == nil {
		m.log = slog.Disabled
	}
	if m.rc == nil {
		m.rc = receipt.NewCache()
	}
	if m.now == nil {
		m.now = unixNow
	}
	for _, t := range cfg.Tables {
		m.tables[t] = true
	}
	if cfg.OraclePriv != "" {
		addr, err := receipt.AddressOfPriv(cfg.OraclePriv)
		if err != nil {
			return nil, err
		}
		m.oraclePriv = cfg.OraclePriv
		m.oracleAddr = addr
	}
	return m, nil
}

// OracleAddr returns the oracle's signer address, empty when no key is
// configured.
func (m *Manager) OracleAddr() string { return m.oracleAddr }

func unixNow() int64 { return time.Now().Unix() }
