package table

import (
	"context"
	"encoding/hex"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"github.com/stakeside/cashgame/pkg/chain"
	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/hand"
	"github.com/stakeside/cashgame/pkg/receipt"
)

// StartNetting opens the netting round for a hand: it folds every unsettled
// hand's bets and payouts into the contract balances, encodes the settlement
// payload, and records it on the hand with the oracle's signature already in
// place. Players deliver theirs through RecordNettingSignature.
func (m *Manager) StartNetting(ctx context.Context, tableAddr string, handID uint32) error {
	hd, ver, err := m.store.Hand(ctx, tableAddr, handID)
	if err != nil {
		return err
	}
	if hd.Netting != nil {
		return errorsmod.Wrapf(errs.ErrConflict, "hand %d has netting already", handID)
	}

	lu, err := m.chain.Lineup(ctx, tableAddr)
	if err != nil {
		return err
	}
	balances := make([]int64, len(lu.Seats))
	for i := range lu.Seats {
		balances[i] = lu.Seats[i].Amount
	}

	for id := lu.LastHandNetted + 1; id <= handID; id++ {
		past := hd
		if id != handID {
			past, _, err = m.store.Hand(ctx, tableAddr, id)
			if err != nil {
				return err
			}
		}
		for i := range past.Lineup {
			if i >= len(balances) || past.Lineup[i].Last == "" {
				continue
			}
			last, err := m.rc.Get(past.Lineup[i].Last)
			if err != nil {
				return err
			}
			balances[i] -= last.Amount
		}
		if past.Distribution == "" {
			continue
		}
		dist, err := m.rc.Get(past.Distribution)
		if err != nil {
			return err
		}
		for _, share := range dist.Shares {
			for i := range lu.Seats {
				if lu.Seats[i].Address == share.Addr {
					balances[i] += share.Amount
				}
			}
		}
	}

	parties := []chain.Party{{Addr: m.oracleAddr, Amount: 0}}
	for i := range lu.Seats {
		if lu.Seats[i].Address != hand.EmptyAddr && lu.Seats[i].Address != "" {
			parties = append(parties, chain.Party{Addr: lu.Seats[i].Address, Amount: balances[i]})
		}
	}
	payload, err := chain.EncodeSettlement(tableAddr, handID, parties)
	if err != nil {
		return err
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(payload, "0x"))
	if err != nil {
		return err
	}
	sig, err := receipt.SignPayload(raw, m.oraclePriv)
	if err != nil {
		return err
	}
	hd.Netting = &hand.Netting{
		NewBalances: payload,
		Sigs:        map[string]string{m.oracleAddr: "0x" + hex.EncodeToString(sig)},
	}
	hd.Changed = m.now()
	return m.store.Update(ctx, hd, ver)
}

// MarkNetted records that the settlement for a hand reached the contract, so
// the dispatcher stops announcing the completed netting.
func (m *Manager) MarkNetted(ctx context.Context, tableAddr string, handID uint32) error {
	hd, ver, err := m.store.Hand(ctx, tableAddr, handID)
	if err != nil {
		return err
	}
	if hd.Netted {
		return nil
	}
	hd.Netted = true
	return m.store.Update(ctx, hd, ver)
}
