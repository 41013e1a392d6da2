// Package hand holds the persisted data model of one played hand: the lineup
// of seats, the deck, the betting state and the optional settlement record.
// Hands are values; engine operations read a snapshot, produce a new value
// and hand it back to the store.
package hand

import (
	"strconv"
)

// EmptyAddr marks an unoccupied seat.
const EmptyAddr = "0x0000000000000000000000000000000000000000"

// State is the betting phase of a hand. States only ever progress forward
// along the fixed order below, with a single shortcut to showdown when all
// remaining players are all-in.
type State string

const (
	StateWaiting  State = "waiting"
	StateDealing  State = "dealing"
	StatePreflop  State = "preflop"
	StateFlop     State = "flop"
	StateTurn     State = "turn"
	StateRiver    State = "river"
	StateShowdown State = "showdown"
)

var stateOrder = map[State]int{
	StateWaiting:  0,
	StateDealing:  1,
	StatePreflop:  2,
	StateFlop:     3,
	StateTurn:     4,
	StateRiver:    5,
	StateShowdown: 6,
}

// Step returns the position of s in the progression order, or -1 for an
// unknown state.
func (s State) Step() int {
	if i, ok := stateOrder[s]; ok {
		return i
	}
	return -1
}

// SitoutAllIn is the sitout marker of a seat that settled its whole balance.
const SitoutAllIn = "allin"

// Sitout is either empty (seat is live), the string "allin", or a unix
// timestamp of when the seat sat out.
type Sitout string

func SitoutAt(ts int64) Sitout {
	return Sitout(strconv.FormatInt(ts, 10))
}

func (s Sitout) Empty() bool   { return s == "" }
func (s Sitout) IsAllIn() bool { return s == SitoutAllIn }

// Seat is one table position and its occupant's per-hand state.
type Seat struct {
	Address string `json:"address"`

	// Amount is the chip stack as of the last on-chain netting. It is
	// sourced from the ledger and never mutated here.
	Amount int64 `json:"amount,omitempty"`

	// Last is the raw encoding of the most recent accepted receipt.
	Last string `json:"last,omitempty"`

	// ExitHand is the hand at which the occupant asked to be removed;
	// zero means no exit requested. Once set it is never cleared.
	ExitHand uint32 `json:"exitHand,omitempty"`

	Sitout       Sitout `json:"sitout,omitempty"`
	LeaveReceipt string `json:"leaveReceipt,omitempty"`

	// Cards holds revealed hole cards, populated during showdown for
	// seats whose last action was "show".
	Cards []int `json:"cards,omitempty"`
}

// Occupied reports whether the seat has a player in it.
func (s *Seat) Occupied() bool {
	return s.Address != "" && s.Address != EmptyAddr
}

// Netting is an in-progress multi-party settlement of a resolved hand.
type Netting struct {
	// NewBalances is the packed settlement payload, computed once when
	// netting starts and never recomputed from a partial signature set.
	NewBalances string `json:"newBalances"`

	// Sigs maps signer address to its signature over NewBalances.
	Sigs map[string]string `json:"sigs"`
}

// Hand is one played round at one table.
type Hand struct {
	TableAddr string `json:"tableAddr"`
	HandID    uint32 `json:"handId"`
	State     State  `json:"state"`
	Dealer    int    `json:"dealer"`
	SB        int64  `json:"sb"`
	Changed   int64  `json:"changed"`
	Deck      []int  `json:"deck,omitempty"`
	Lineup    []Seat `json:"lineup"`

	// Recorded per-street max bets, used to reconstruct public history.
	PreMaxBet   int64 `json:"preMaxBet,omitempty"`
	FlopMaxBet  int64 `json:"flopMaxBet,omitempty"`
	TurnMaxBet  int64 `json:"turnMaxBet,omitempty"`
	RiverMaxBet int64 `json:"riverMaxBet,omitempty"`

	// Distribution is the oracle-signed payout receipt. Its presence
	// makes the hand immutable to further actions.
	Distribution string `json:"distribution,omitempty"`

	Netting *Netting `json:"netting,omitempty"`

	// Netted is set after the settlement transaction confirmed on chain.
	Netted bool `json:"netted,omitempty"`
}

// Settled reports whether the hand has been resolved with a distribution.
func (h *Hand) Settled() bool {
	return h.Distribution != ""
}

// HoleCards returns the two hole cards dealt to seat pos, or nil when the
// deck is not present on this snapshot.
func (h *Hand) HoleCards(pos int) []int {
	if len(h.Deck) < 2*pos+2 {
		return nil
	}
	return []int{h.Deck[2*pos], h.Deck[2*pos+1]}
}

// Board returns the community cards revealed at the hand's current state.
// Deck indices 20..24 hold the board.
func (h *Hand) Board() []int {
	var n int
	switch h.State {
	case StateFlop:
		n = 3
	case StateTurn:
		n = 4
	case StateRiver, StateShowdown:
		n = 5
	}
	if n == 0 || len(h.Deck) < 20+n {
		return []int{}
	}
	board := make([]int, n)
	copy(board, h.Deck[20:20+n])
	return board
}

// Clone returns a deep copy of h.
func (h *Hand) Clone() *Hand {
	c := *h
	c.Deck = append([]int(nil), h.Deck...)
	c.Lineup = make([]Seat, len(h.Lineup))
	for i, s := range h.Lineup {
		c.Lineup[i] = s
		c.Lineup[i].Cards = append([]int(nil), s.Cards...)
	}
	if h.Netting != nil {
		n := &Netting{NewBalances: h.Netting.NewBalances, Sigs: make(map[string]string, len(h.Netting.Sigs))}
		for k, v := range h.Netting.Sigs {
			n.Sigs[k] = v
		}
		c.Netting = n
	}
	return &c
}

// Next derives the follow-up hand of a resolved hand: id+1, waiting, dealer
// advanced to the next occupied seat, a fresh deck, and the lineup carried
// over. Seats whose exit hand has passed are emptied; per-hand receipt state
// and all-in markers are dropped, voluntary sitouts and pending exits stick.
func (h *Hand) Next(now int64) *Hand {
	next := &Hand{
		TableAddr: h.TableAddr,
		HandID:    h.HandID + 1,
		State:     StateWaiting,
		SB:        h.SB,
		Changed:   now,
		Deck:      NewDeck(),
		Lineup:    make([]Seat, len(h.Lineup)),
	}
	for i, s := range h.Lineup {
		if !s.Occupied() || (s.ExitHand > 0 && s.ExitHand <= h.HandID) {
			next.Lineup[i] = Seat{Address: EmptyAddr}
			continue
		}
		seat := Seat{Address: s.Address, Amount: s.Amount, ExitHand: s.ExitHand, LeaveReceipt: s.LeaveReceipt}
		if !s.Sitout.Empty() && !s.Sitout.IsAllIn() {
			seat.Sitout = s.Sitout
		}
		next.Lineup[i] = seat
	}
	next.Dealer = nextOccupied(next.Lineup, h.Dealer+1)
	return next
}

func nextOccupied(lineup []Seat, from int) int {
	n := len(lineup)
	if n == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		p := ((from+i)%n + n) % n
		if lineup[p].Occupied() {
			return p
		}
	}
	return 0
}
