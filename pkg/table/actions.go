package table

import (
	"context"
	"encoding/hex"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/hand"
	"github.com/stakeside/cashgame/pkg/receipt"
)

// ActionResult is returned from SubmitAction: the acting seat's hole cards
// once a deck exists.
type ActionResult struct {
	Cards []int `json:"cards,omitempty"`
}

// SubmitAction validates a signed action receipt against the table's current
// hand, applies it, and advances the hand state. It returns the signer's
// hole cards so a client learns them by posting its blind.
func (m *Manager) SubmitAction(ctx context.Context, tableAddr, raw string) (*ActionResult, error) {
	rcpt, err := m.rc.Get(raw)
	if err != nil {
		return nil, errorsmod.Wrap(errs.ErrBadRequest, err.Error())
	}
	now := m.now()

	hd, ver, err := m.store.LastHand(ctx, tableAddr)
	if err != nil {
		return nil, err
	}
	if hd.HandID != rcpt.HandID {
		return nil, errorsmod.Wrapf(errs.ErrBadRequest,
			"unknown handId %d, currently playing %d", rcpt.HandID, hd.HandID)
	}
	if hd.Distribution != "" {
		return nil, errorsmod.Wrapf(errs.ErrBadRequest,
			"hand %d has distribution already", hd.HandID)
	}
	pos := m.helper.InLineup(rcpt.Signer, hd.Lineup)
	if pos < 0 {
		return nil, errorsmod.Wrapf(errs.ErrForbidden, "address %s not in lineup", rcpt.Signer)
	}
	seat := &hd.Lineup[pos]
	if seat.ExitHand != 0 && seat.ExitHand < hd.HandID {
		return nil, errorsmod.Wrapf(errs.ErrForbidden, "exitHand %d exceeded", seat.ExitHand)
	}
	if seat.Last == raw {
		return nil, errorsmod.Wrap(errs.ErrUnauthorized, "you can not reuse receipts")
	}

	// Enough seats to start? A lone receipt only makes sense when its
	// signer is returning from sitout.
	activeCount := m.helper.ActivePlayersLeft(hd)
	if hd.State == hand.StateWaiting && activeCount < 2 {
		if activeCount == 0 || seat.Sitout.Empty() {
			return nil, errorsmod.Wrap(errs.ErrBadRequest, "not enough players to start game")
		}
		seat.Sitout = ""
	}

	_, maxBet := m.helper.FindMaxBet(hd.Lineup)
	if hd.State != hand.StateDealing && rcpt.Type == receipt.TypeBet && rcpt.Amount < maxBet {
		return nil, errorsmod.Wrapf(errs.ErrUnauthorized, "you have to match or raise %d", maxBet)
	}

	var prev *receipt.Receipt
	if seat.Last != "" {
		prev, err = m.rc.Get(seat.Last)
		if err != nil {
			return nil, errorsmod.Wrap(errs.ErrBadRequest, err.Error())
		}
		if prev.Type == receipt.TypeFold {
			return nil, errorsmod.Wrap(errs.ErrBadRequest, "no bet after fold")
		}
		if prev.Type == receipt.TypeSitOut &&
			(rcpt.Type == receipt.TypeBet || rcpt.Type == receipt.TypeSitOut) {
			return nil, errorsmod.Wrap(errs.ErrBadRequest, "can not toggle sitout in same hand")
		}
		if rcpt.Type.IsCheck() && rcpt.Amount != prev.Amount {
			return nil, errorsmod.Wrap(errs.ErrBadRequest, "check should not raise")
		}
	}

	if err := checkMatchesStreet(rcpt.Type, hd.State); err != nil {
		return nil, err
	}

	turn := m.helper.IsMyTurn(hd, pos)
	if hd.State == hand.StateWaiting {
		if rcpt.Type == receipt.TypeSitOut {
			switch {
			case rcpt.Amount == 0 && seat.Sitout.Empty():
				seat.Sitout = hand.SitoutAt(now)
			case rcpt.Amount == hd.SB*2:
				seat.Sitout = ""
			default:
				return nil, errorsmod.Wrap(errs.ErrBadRequest,
					"pay big blind when passed dealer in sitout")
			}
		} else {
			if !turn && activeCount > 1 {
				return nil, errorsmod.Wrap(errs.ErrBadRequest, "not your turn to pay small blind")
			}
			if rcpt.Amount != hd.SB {
				return nil, errorsmod.Wrap(errs.ErrBadRequest, "small blind not valid")
			}
		}
	} else if rcpt.Type == receipt.TypeSitOut {
		if rcpt.Amount <= 0 {
			return nil, errorsmod.Wrap(errs.ErrUnauthorized, "need to pay to sit out after waiting")
		}
		if !seat.Sitout.Empty() {
			// Coming back from sitout costs the big blind.
			if rcpt.Amount < hd.SB*2 {
				return nil, errorsmod.Wrap(errs.ErrUnauthorized, "need to pay big blind to return")
			}
			seat.Sitout = ""
		} else {
			seat.Sitout = hand.SitoutAt(now)
		}
	}

	if hd.State == hand.StateDealing && turn && rcpt.Type == receipt.TypeBet {
		sbFrom := hd.Dealer
		if len(hd.Lineup) > 2 {
			sbFrom = hd.Dealer + 1
		}
		sbPos := m.helper.NextActivePlayer(hd.Lineup, sbFrom)
		bbPos := m.helper.NextActivePlayer(hd.Lineup, sbPos+1)
		if m.helper.WhosTurn(hd) == bbPos && rcpt.Amount != hd.SB*2 {
			return nil, errorsmod.Wrap(errs.ErrBadRequest, "big blind not valid")
		}
	}

	// Only an increased wager needs funds; check it against the contract
	// balance netted with every unsettled hand.
	if (prev != nil && prev.Amount < rcpt.Amount) || (prev == nil && rcpt.Amount > 0) {
		balLeft, err := m.calcBalance(ctx, tableAddr, pos, rcpt)
		if err != nil {
			return nil, err
		}
		seat.Last = raw
		if balLeft == 0 {
			seat.Sitout = hand.SitoutAllIn
		}
	} else {
		seat.Last = raw
	}

	m.advance(hd)
	if err := m.store.Update(ctx, hd, ver); err != nil {
		return nil, err
	}
	return &ActionResult{Cards: hd.HoleCards(pos)}, nil
}

func checkMatchesStreet(t receipt.Type, state hand.State) error {
	var want hand.State
	switch t {
	case receipt.TypeCheckPre:
		want = hand.StatePreflop
	case receipt.TypeCheckFlop:
		want = hand.StateFlop
	case receipt.TypeCheckTurn:
		want = hand.StateTurn
	case receipt.TypeCheckRiver:
		want = hand.StateRiver
	default:
		return nil
	}
	if state != want {
		return errorsmod.Wrapf(errs.ErrBadRequest, "%s only during %s", t, want)
	}
	return nil
}

// RevealCards handles a show or muck receipt during showdown. The submitted
// hole cards must match the dealt deck; shown cards become public.
func (m *Manager) RevealCards(ctx context.Context, tableAddr, raw string, cards []int) (*hand.View, error) {
	if len(cards) != 2 {
		return nil, errorsmod.Wrap(errs.ErrBadRequest, "cards should be submitted as a pair")
	}
	rcpt, err := m.rc.Get(raw)
	if err != nil {
		return nil, errorsmod.Wrap(errs.ErrBadRequest, err.Error())
	}
	if rcpt.Type != receipt.TypeShow && rcpt.Type != receipt.TypeMuck {
		return nil, errorsmod.Wrap(errs.ErrBadRequest,
			`only "show" and "muck" receipts permitted in showdown`)
	}

	hd, ver, err := m.store.Hand(ctx, tableAddr, rcpt.HandID)
	if err != nil {
		return nil, err
	}
	if hd.State != hand.StateShowdown {
		return nil, errorsmod.Wrapf(errs.ErrBadRequest, "hand %d not in showdown", rcpt.HandID)
	}
	pos := m.helper.InLineup(rcpt.Signer, hd.Lineup)
	if pos < 0 {
		return nil, errorsmod.Wrapf(errs.ErrForbidden, "address %s not in lineup", rcpt.Signer)
	}
	seat := &hd.Lineup[pos]
	if !seat.Sitout.Empty() && !seat.Sitout.IsAllIn() {
		return nil, errorsmod.Wrapf(errs.ErrForbidden,
			"seat %d in sitout, not allowed in showdown", pos)
	}
	if !m.helper.IsActivePlayer(hd.Lineup, pos) && !seat.Sitout.IsAllIn() {
		return nil, errorsmod.Wrapf(errs.ErrForbidden, "seat %d is not an active player", pos)
	}
	if seat.Last == raw {
		return nil, errorsmod.Wrap(errs.ErrUnauthorized, "you can not reuse receipts")
	}
	prev, err := m.rc.Get(seat.Last)
	if err != nil {
		return nil, errorsmod.Wrap(errs.ErrBadRequest, err.Error())
	}
	if rcpt.Amount < prev.Amount {
		return nil, errorsmod.Wrap(errs.ErrUnauthorized,
			"show amount must match or exceed the last receipt")
	}
	if cards[0] != hd.Deck[pos*2] || cards[1] != hd.Deck[pos*2+1] {
		return nil, errorsmod.Wrap(errs.ErrBadRequest, "you submitted wrong cards")
	}

	seat.Last = raw
	if rcpt.Type == receipt.TypeShow {
		seat.Cards = cards
	}
	if seat.Sitout.IsAllIn() {
		seat.Sitout = ""
	}
	hd.Changed = m.now()
	if err := m.store.Update(ctx, hd, ver); err != nil {
		return nil, err
	}
	return hand.PublicView(hd, m.rc), nil
}

// RecordLeaveIntent handles a player's leave receipt: after validating the
// exit hand against the current hand and the contract lineup, the oracle
// countersigns a leave receipt the player can redeem on chain.
func (m *Manager) RecordLeaveIntent(ctx context.Context, tableAddr, raw string) (string, error) {
	rcpt, err := m.rc.Get(raw)
	if err != nil {
		return "", errorsmod.Wrap(errs.ErrBadRequest, err.Error())
	}
	if rcpt.Type != receipt.TypeLeave {
		return "", errorsmod.Wrapf(errs.ErrBadRequest, "expected leave receipt, got %s", rcpt.Type)
	}

	hd, ver, err := m.store.LastHand(ctx, tableAddr)
	if err != nil {
		return "", err
	}
	// During waiting the previous hand is still open for exits.
	minExit := hd.HandID
	if hd.State == hand.StateWaiting {
		minExit = hd.HandID - 1
	}
	if rcpt.HandID < minExit {
		return "", errorsmod.Wrapf(errs.ErrBadRequest, "forbidden to exit at handId %d", rcpt.HandID)
	}

	lu, err := m.chain.Lineup(ctx, tableAddr)
	if err != nil {
		return "", err
	}
	pos := -1
	for i := range lu.Seats {
		if lu.Seats[i].Address == rcpt.Signer {
			pos = i
			break
		}
	}
	if pos < 0 {
		return "", errorsmod.Wrapf(errs.ErrForbidden, "address %s not in lineup", rcpt.Signer)
	}
	for pos >= len(hd.Lineup) {
		hd.Lineup = append(hd.Lineup, hand.Seat{Address: hand.EmptyAddr})
	}
	seat := &hd.Lineup[pos]
	if seat.ExitHand != 0 {
		return "", errorsmod.Wrapf(errs.ErrForbidden, "exitHand %d already set", seat.ExitHand)
	}

	countersigned, err := receipt.NewLeave(tableAddr, rcpt.HandID, rcpt.Signer).Sign(m.oraclePriv)
	if err != nil {
		return "", err
	}
	seat.LeaveReceipt = countersigned
	seat.ExitHand = rcpt.HandID
	if rcpt.HandID < hd.HandID {
		seat.Sitout = hand.SitoutAt(1)
	}
	if err := m.store.Update(ctx, hd, ver); err != nil {
		return "", err
	}
	return countersigned, nil
}

// RecordNettingSignature verifies a player's signature over a hand's
// settlement payload and records it. Each party may sign once.
func (m *Manager) RecordNettingSignature(ctx context.Context, tableAddr string, handID uint32, sigHex string) error {
	hd, ver, err := m.store.Hand(ctx, tableAddr, handID)
	if err != nil {
		return err
	}
	if hd.Netting == nil {
		return errorsmod.Wrapf(errs.ErrBadRequest, "hand %d has no netting", handID)
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(hd.Netting.NewBalances, "0x"))
	if err != nil {
		return errorsmod.Wrap(errs.ErrBadRequest, "netting payload invalid")
	}
	signer, err := receipt.RecoverSignerHex(payload, sigHex)
	if err != nil {
		return errorsmod.Wrapf(errs.ErrBadRequest, "nettingSig %q invalid", sigHex)
	}
	if _, ok := hd.Netting.Sigs[signer]; ok {
		return errorsmod.Wrapf(errs.ErrConflict, "signer %s already delivered nettingSig", signer)
	}
	if m.helper.InLineup(signer, hd.Lineup) < 0 {
		return errorsmod.Wrapf(errs.ErrNotFound, "signer %s not in lineup", signer)
	}
	if hd.Netting.Sigs == nil {
		hd.Netting.Sigs = make(map[string]string)
	}
	hd.Netting.Sigs[signer] = sigHex
	hd.Changed = m.now()
	return m.store.Update(ctx, hd, ver)
}

// ForceTimeout puts the seat due to act into sitout once its action window
// lapsed, then advances the hand past it.
func (m *Manager) ForceTimeout(ctx context.Context, tableAddr string) error {
	hd, ver, err := m.store.LastHand(ctx, tableAddr)
	if err != nil {
		return err
	}
	pos := m.helper.WhosTurn(hd)
	if pos < 0 {
		return errorsmod.Wrapf(errs.ErrBadRequest,
			"could not find next player to act in hand %d", hd.HandID)
	}
	now := m.now()
	if left := hd.Changed + ActionTimeout - now; left > 0 {
		return errorsmod.Wrapf(errs.ErrBadRequest,
			"player %d still got %d seconds to act", pos, left)
	}
	hd.Lineup[pos].Sitout = hand.SitoutAt(now)
	m.advance(hd)
	return m.store.Update(ctx, hd, ver)
}
