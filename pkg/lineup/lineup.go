// Package lineup answers the game-logic queries the engine and the change
// dispatcher ask about a hand: who is active, whose turn it is, whether the
// current betting round or the whole hand is finished.
//
// The rules are receipt-driven. A betting round on the post-deal streets
// closes only when every active seat's last receipt is a check of the
// current street at the table max; bets merely move the max. The street-typed
// check receipts are what scope an action to a street, so every street ends
// in an explicit check-around at its final amount.
package lineup

import (
	"github.com/stakeside/cashgame/pkg/hand"
	"github.com/stakeside/cashgame/pkg/receipt"
)

// Helper implements the lineup queries on top of a receipt cache.
type Helper struct {
	rc *receipt.Cache
}

func New(rc *receipt.Cache) *Helper {
	return &Helper{rc: rc}
}

// last decodes a seat's last receipt, nil when absent or undecodable.
func (h *Helper) last(s *hand.Seat) *receipt.Receipt {
	if s.Last == "" {
		return nil
	}
	rcpt, err := h.rc.Get(s.Last)
	if err != nil {
		return nil
	}
	return rcpt
}

// InLineup returns the seat position occupied by signer, or -1.
func (h *Helper) InLineup(signer string, lineup []hand.Seat) int {
	for i := range lineup {
		if lineup[i].Address == signer {
			return i
		}
	}
	return -1
}

// IsActivePlayer reports whether seat pos still takes part in betting:
// occupied, not sitting out (all-in counts as out of the betting), and not
// folded.
func (h *Helper) IsActivePlayer(lineup []hand.Seat, pos int) bool {
	if pos < 0 || pos >= len(lineup) {
		return false
	}
	s := &lineup[pos]
	if !s.Occupied() || !s.Sitout.Empty() {
		return false
	}
	if last := h.last(s); last != nil && last.Type == receipt.TypeFold {
		return false
	}
	return true
}

// ActivePlayersLeft counts the active seats of hd.
func (h *Helper) ActivePlayersLeft(hd *hand.Hand) int {
	count := 0
	for i := range hd.Lineup {
		if h.IsActivePlayer(hd.Lineup, i) {
			count++
		}
	}
	return count
}

// CountAllIns counts seats carrying the all-in sitout marker.
func (h *Helper) CountAllIns(hd *hand.Hand) int {
	count := 0
	for i := range hd.Lineup {
		if hd.Lineup[i].Sitout.IsAllIn() {
			count++
		}
	}
	return count
}

// FindMaxBet returns the position and amount of the highest last-receipt
// amount in the lineup; (-1, 0) when nobody has acted.
func (h *Helper) FindMaxBet(lineup []hand.Seat) (int, int64) {
	pos, max := -1, int64(0)
	for i := range lineup {
		if last := h.last(&lineup[i]); last != nil && last.Amount > max {
			pos, max = i, last.Amount
		}
	}
	return pos, max
}

// NextActivePlayer returns the first active seat at or after from, scanning
// circularly; -1 when no seat is active.
func (h *Helper) NextActivePlayer(lineup []hand.Seat, from int) int {
	n := len(lineup)
	if n == 0 {
		return -1
	}
	for i := 0; i < n; i++ {
		p := ((from+i)%n + n) % n
		if h.IsActivePlayer(lineup, p) {
			return p
		}
	}
	return -1
}

// smallBlindPos returns the seat due to post the small blind: the next
// active seat after the dealer, or the dealer itself heads-up.
func (h *Helper) smallBlindPos(hd *hand.Hand) int {
	occupied := 0
	for i := range hd.Lineup {
		if hd.Lineup[i].Occupied() {
			occupied++
		}
	}
	from := hd.Dealer + 1
	if occupied <= 2 {
		from = hd.Dealer
	}
	return h.NextActivePlayer(hd.Lineup, from)
}

// bigBlindPos returns the seat due to post the big blind.
func (h *Helper) bigBlindPos(hd *hand.Hand) int {
	sb := h.smallBlindPos(hd)
	if sb < 0 {
		return -1
	}
	return h.NextActivePlayer(hd.Lineup, sb+1)
}

// checkTypeFor maps a street to its check receipt type; 0 when the state has
// no check action.
func checkTypeFor(state hand.State) receipt.Type {
	switch state {
	case hand.StatePreflop:
		return receipt.TypeCheckPre
	case hand.StateFlop:
		return receipt.TypeCheckFlop
	case hand.StateTurn:
		return receipt.TypeCheckTurn
	case hand.StateRiver:
		return receipt.TypeCheckRiver
	}
	return 0
}

// WhosTurn returns the position due to act in hd, or -1 when no action is
// due (showdown, or the round already closed).
func (h *Helper) WhosTurn(hd *hand.Hand) int {
	switch hd.State {
	case hand.StateWaiting:
		return h.smallBlindPos(hd)
	case hand.StateDealing:
		// Blinds and antes post in order from the small blind; the
		// first active seat without a receipt this hand is due.
		sb := h.smallBlindPos(hd)
		if sb < 0 {
			return -1
		}
		n := len(hd.Lineup)
		for i := 0; i < n; i++ {
			p := (sb + i) % n
			if h.IsActivePlayer(hd.Lineup, p) && h.last(&hd.Lineup[p]) == nil {
				return p
			}
		}
		return -1
	case hand.StatePreflop, hand.StateFlop, hand.StateTurn, hand.StateRiver:
		opener := h.streetOpener(hd)
		if opener < 0 {
			return -1
		}
		_, max := h.FindMaxBet(hd.Lineup)
		checkType := checkTypeFor(hd.State)
		n := len(hd.Lineup)
		for i := 0; i < n; i++ {
			p := (opener + i) % n
			if !h.IsActivePlayer(hd.Lineup, p) {
				continue
			}
			last := h.last(&hd.Lineup[p])
			if last == nil || last.Amount < max || last.Type != checkType {
				return p
			}
		}
		return -1
	}
	return -1
}

// streetOpener is the first position to act on the current street.
func (h *Helper) streetOpener(hd *hand.Hand) int {
	if hd.State == hand.StatePreflop {
		bb := h.bigBlindPos(hd)
		if bb < 0 {
			return -1
		}
		return h.NextActivePlayer(hd.Lineup, bb+1)
	}
	return h.NextActivePlayer(hd.Lineup, hd.Dealer+1)
}

// IsMyTurn reports whether pos is due to act.
func (h *Helper) IsMyTurn(hd *hand.Hand, pos int) bool {
	return pos >= 0 && h.WhosTurn(hd) == pos
}

// AllDone reports whether no further action is due at maxBet. In dealing the
// round closes once every active seat has posted and the max reached the
// big-blind floor; on the betting streets every active seat must have
// checked the current street at maxBet.
func (h *Helper) AllDone(lineup []hand.Seat, dealer int, state hand.State, maxBet, bbFloor int64) bool {
	switch state {
	case hand.StateWaiting, hand.StateShowdown:
		return false
	case hand.StateDealing:
		acted := 0
		for i := range lineup {
			if !h.IsActivePlayer(lineup, i) {
				continue
			}
			if h.last(&lineup[i]) == nil {
				return false
			}
			acted++
		}
		return acted >= 2 && maxBet >= bbFloor
	}

	checkType := checkTypeFor(state)
	for i := range lineup {
		if !h.IsActivePlayer(lineup, i) {
			continue
		}
		last := h.last(&lineup[i])
		if last == nil || last.Type != checkType || last.Amount < maxBet {
			return false
		}
	}
	return true
}

// CheckForNextHand reports whether the hand itself is finished: everyone but
// one contender folded or sat out, or showdown completed with every
// contender having shown or mucked. A seat that went all-in remains a
// contender.
func (h *Helper) CheckForNextHand(hd *hand.Hand) bool {
	if hd == nil || len(hd.Lineup) == 0 || hd.State == hand.StateWaiting {
		return false
	}
	contenders, acted := 0, 0
	shownOut := 0
	for i := range hd.Lineup {
		s := &hd.Lineup[i]
		if !s.Occupied() {
			continue
		}
		last := h.last(s)
		if last != nil {
			acted++
		}
		if !s.Sitout.Empty() && !s.Sitout.IsAllIn() {
			continue
		}
		if last != nil && last.Type == receipt.TypeFold {
			continue
		}
		contenders++
		if last != nil && (last.Type == receipt.TypeShow || last.Type == receipt.TypeMuck) {
			shownOut++
		}
	}
	if acted == 0 {
		return false
	}
	if contenders <= 1 {
		return true
	}
	return hd.State == hand.StateShowdown && shownOut == contenders
}
