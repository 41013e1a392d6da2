package table

import (
	"context"

	errorsmod "cosmossdk.io/errors"

	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/hand"
)

// Info returns the public view of the table's current hand. A configured
// table with no hands yet reports a settled placeholder so clients trigger
// the first hand.
func (m *Manager) Info(ctx context.Context, tableAddr string) (*hand.View, error) {
	hd, _, err := m.store.LastHand(ctx, tableAddr)
	if err != nil {
		if errorsmod.IsOf(err, errs.ErrNotFound) && m.tables[tableAddr] {
			return &hand.View{
				HandID:       0,
				State:        hand.StateShowdown,
				Cards:        []int{},
				Distribution: "0x1234",
			}, nil
		}
		return nil, err
	}
	return hand.PublicView(hd, m.rc), nil
}

// HandInfo returns the public view of one past hand.
func (m *Manager) HandInfo(ctx context.Context, tableAddr string, handID uint32) (*hand.View, error) {
	hd, _, err := m.store.Hand(ctx, tableAddr, handID)
	if err != nil {
		return nil, err
	}
	return hand.PublicView(hd, m.rc), nil
}
