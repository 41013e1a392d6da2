package table

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/chehsunliu/poker"

	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/hand"
	"github.com/stakeside/cashgame/pkg/receipt"
)

var (
	rankChars = "23456789TJQKA"
	suitChars = "cdhs"
)

// pokerCard maps a deck index to the evaluator's card encoding.
func pokerCard(c int) poker.Card {
	return poker.NewCard(string([]byte{rankChars[c%13], suitChars[c/13]}))
}

// ResolveHand settles a finished hand: it totals the pot from every seat's
// last receipt, picks the winners (last player standing, or best shown hand
// at showdown), and records an oracle-signed distribution receipt. Calling
// it again returns the recorded distribution.
func (m *Manager) ResolveHand(ctx context.Context, tableAddr string, handID uint32) (string, error) {
	hd, ver, err := m.store.Hand(ctx, tableAddr, handID)
	if err != nil {
		return "", err
	}
	if hd.Distribution != "" {
		return hd.Distribution, nil
	}
	if !m.helper.CheckForNextHand(hd) {
		return "", errorsmod.Wrapf(errs.ErrBadRequest, "hand %d not complete", handID)
	}

	var pot int64
	type contender struct {
		pos   int
		shown bool
	}
	var contenders []contender
	for i := range hd.Lineup {
		s := &hd.Lineup[i]
		if !s.Occupied() || s.Last == "" {
			continue
		}
		last, err := m.rc.Get(s.Last)
		if err != nil {
			return "", err
		}
		pot += last.Amount
		if last.Type == receipt.TypeFold {
			continue
		}
		if !s.Sitout.Empty() && !s.Sitout.IsAllIn() {
			continue
		}
		contenders = append(contenders, contender{pos: i, shown: last.Type == receipt.TypeShow})
	}
	if len(contenders) == 0 {
		return "", errorsmod.Wrapf(errs.ErrBadRequest, "hand %d has no contenders", handID)
	}

	var winners []int
	if len(contenders) == 1 {
		winners = []int{contenders[0].pos}
	} else {
		// Showdown: best shown hand takes it; mucked hands concede.
		board := hd.Board()
		best := int32(-1)
		for _, c := range contenders {
			if !c.shown {
				continue
			}
			cards := make([]poker.Card, 0, 7)
			for _, hc := range hd.HoleCards(c.pos) {
				cards = append(cards, pokerCard(hc))
			}
			for _, bc := range board {
				cards = append(cards, pokerCard(bc))
			}
			rank := poker.Evaluate(cards)
			switch {
			case best < 0 || rank < best:
				best = rank
				winners = []int{c.pos}
			case rank == best:
				winners = append(winners, c.pos)
			}
		}
		if len(winners) == 0 {
			return "", errorsmod.Wrapf(errs.ErrBadRequest, "hand %d has no shown hands", handID)
		}
	}

	share := pot / int64(len(winners))
	rem := pot % int64(len(winners))
	shares := make([]receipt.Share, len(winners))
	for i, pos := range winners {
		amount := share
		if i == 0 {
			amount += rem
		}
		shares[i] = receipt.Share{Addr: hd.Lineup[pos].Address, Amount: amount}
	}

	dist, err := receipt.NewDistribution(handID, 0, shares).Sign(m.oraclePriv)
	if err != nil {
		return "", err
	}
	hd.Distribution = dist
	hd.Changed = m.now()
	if err := m.store.Update(ctx, hd, ver); err != nil {
		return "", err
	}
	return dist, nil
}

// NextHand opens the table's next hand once the current one is settled. For
// a configured table with no hands yet it bootstraps hand 1 from the
// contract lineup.
func (m *Manager) NextHand(ctx context.Context, tableAddr string) (*hand.Hand, error) {
	now := m.now()
	hd, _, err := m.store.LastHand(ctx, tableAddr)
	if err != nil {
		if !errorsmod.IsOf(err, errs.ErrNotFound) || !m.tables[tableAddr] {
			return nil, err
		}
		return m.bootstrapHand(ctx, tableAddr, now)
	}
	if !hd.Settled() {
		return nil, errorsmod.Wrapf(errs.ErrBadRequest, "hand %d not settled yet", hd.HandID)
	}
	next := hd.Next(now)
	if err := m.store.Insert(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (m *Manager) bootstrapHand(ctx context.Context, tableAddr string, now int64) (*hand.Hand, error) {
	lu, err := m.chain.Lineup(ctx, tableAddr)
	if err != nil {
		return nil, err
	}
	sb := lu.SmallBlind
	if sb == 0 {
		sb, err = m.chain.SmallBlind(ctx, tableAddr)
		if err != nil {
			return nil, err
		}
	}
	seats := make([]hand.Seat, len(lu.Seats))
	for i := range lu.Seats {
		seats[i] = hand.Seat{Address: lu.Seats[i].Address}
		if seats[i].Address == "" {
			seats[i].Address = hand.EmptyAddr
		}
	}
	first := &hand.Hand{
		TableAddr: tableAddr,
		HandID:    lu.LastHandNetted + 1,
		State:     hand.StateWaiting,
		Dealer:    0,
		SB:        sb,
		Changed:   now,
		Deck:      hand.NewDeck(),
		Lineup:    seats,
	}
	if err := m.store.Insert(ctx, first); err != nil {
		return nil, err
	}
	return first, nil
}
