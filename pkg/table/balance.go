package table

import (
	"context"

	errorsmod "cosmossdk.io/errors"

	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/receipt"
)

// calcBalance checks that the signer of rcpt can cover its amount and
// returns the balance left after the wager. The balance is the seat's
// contract deposit at the last netted hand, minus every bet and plus every
// payout in the unsettled hands before the current one.
func (m *Manager) calcBalance(ctx context.Context, tableAddr string, pos int, rcpt *receipt.Receipt) (int64, error) {
	if rcpt.Amount <= 0 {
		return 0, nil
	}
	lu, err := m.chain.Lineup(ctx, tableAddr)
	if err != nil {
		return 0, err
	}
	if pos >= len(lu.Seats) {
		return 0, errorsmod.Wrapf(errs.ErrBadRequest, "seat %d not on contract", pos)
	}
	amount := lu.Seats[pos].Amount

	for id := lu.LastHandNetted + 1; id < rcpt.HandID; id++ {
		hd, _, err := m.store.Hand(ctx, tableAddr, id)
		if err != nil {
			return 0, err
		}
		if pos < len(hd.Lineup) && hd.Lineup[pos].Last != "" {
			last, err := m.rc.Get(hd.Lineup[pos].Last)
			if err != nil {
				return 0, err
			}
			amount -= last.Amount
		}
		if hd.Distribution != "" {
			dist, err := m.rc.Get(hd.Distribution)
			if err != nil {
				return 0, err
			}
			for _, share := range dist.Shares {
				if share.Addr == rcpt.Signer {
					amount += share.Amount
				}
			}
		}
	}

	balLeft := amount - rcpt.Amount
	if balLeft < 0 {
		return 0, errorsmod.Wrapf(errs.ErrForbidden, "can not bet more than balance (%d)", amount)
	}
	return balLeft, nil
}
