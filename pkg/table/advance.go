package table

import (
	"github.com/stakeside/cashgame/pkg/hand"
)

// advance moves hd forward after an accepted receipt: it closes a finished
// betting round (recording the street's max bet), opens dealing from
// waiting, and short-circuits to showdown when everyone left standing is
// all-in.
func (m *Manager) advance(hd *hand.Hand) {
	_, maxBet := m.helper.FindMaxBet(hd.Lineup)
	bbFloor := int64(0)
	if maxBet <= hd.SB*2 {
		bbFloor = hd.SB * 2
	}
	bettingDone := m.helper.AllDone(hd.Lineup, hd.Dealer, hd.State, maxBet, bbFloor)
	handDone := m.helper.CheckForNextHand(hd)

	if bettingDone && !handDone {
		switch hd.State {
		case hand.StateRiver:
			hd.State = hand.StateShowdown
			hd.RiverMaxBet = maxBet
		case hand.StateTurn:
			hd.State = hand.StateRiver
			hd.TurnMaxBet = maxBet
		case hand.StateFlop:
			hd.State = hand.StateTurn
			hd.FlopMaxBet = maxBet
		case hand.StatePreflop:
			hd.State = hand.StateFlop
			hd.PreMaxBet = maxBet
		case hand.StateDealing:
			hd.State = hand.StatePreflop
		}
	}
	if hd.State == hand.StateWaiting {
		hd.State = hand.StateDealing
	}

	// Nobody left to act against a live all-in: straight to showdown.
	if bettingDone && m.helper.ActivePlayersLeft(hd) == 1 && m.helper.CountAllIns(hd) > 0 {
		hd.State = hand.StateShowdown
	}
	hd.Changed = m.now()
}
