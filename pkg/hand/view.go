package hand

import "github.com/stakeside/cashgame/pkg/receipt"

// View is the sanitized per-table broadcast payload. Hole cards appear only
// for seats that showed; the board is revealed progressively by state.
type View struct {
	HandID       uint32   `json:"handId"`
	Lineup       []Seat   `json:"lineup"`
	Dealer       int      `json:"dealer"`
	State        State    `json:"state"`
	Changed      int64    `json:"changed"`
	SB           int64    `json:"sb"`
	Cards        []int    `json:"cards"`
	PreMaxBet    int64    `json:"preMaxBet,omitempty"`
	FlopMaxBet   int64    `json:"flopMaxBet,omitempty"`
	TurnMaxBet   int64    `json:"turnMaxBet,omitempty"`
	RiverMaxBet  int64    `json:"riverMaxBet,omitempty"`
	Distribution string   `json:"distribution,omitempty"`
	Netting      *Netting `json:"netting,omitempty"`
}

// Update is the message published on the table's broadcast channel.
type Update struct {
	Type    string `json:"type"`
	Payload *View  `json:"payload"`
}

// PublicView renders the broadcastable projection of h. rc is used to decode
// each seat's last receipt when deciding whether its hole cards are public.
func PublicView(h *Hand, rc *receipt.Cache) *View {
	v := &View{
		HandID:  h.HandID,
		Dealer:  h.Dealer,
		State:   h.State,
		Changed: h.Changed,
		SB:      h.SB,
		Cards:   h.Board(),
	}

	v.Lineup = make([]Seat, len(h.Lineup))
	for i, s := range h.Lineup {
		seat := s
		seat.Cards = append([]int(nil), s.Cards...)
		if h.State == StateShowdown && s.Last != "" {
			if last, err := rc.Get(s.Last); err == nil && last.Type == receipt.TypeShow {
				seat.Cards = h.HoleCards(i)
			}
		}
		v.Lineup[i] = seat
	}

	// Street max bets accompany their board reveal.
	switch h.State {
	case StateFlop:
		v.PreMaxBet = h.PreMaxBet
	case StateTurn:
		v.PreMaxBet, v.FlopMaxBet = h.PreMaxBet, h.FlopMaxBet
	case StateRiver:
		v.PreMaxBet, v.FlopMaxBet, v.TurnMaxBet = h.PreMaxBet, h.FlopMaxBet, h.TurnMaxBet
	case StateShowdown:
		v.PreMaxBet, v.FlopMaxBet = h.PreMaxBet, h.FlopMaxBet
		v.TurnMaxBet, v.RiverMaxBet = h.TurnMaxBet, h.RiverMaxBet
	}

	if h.Distribution != "" {
		v.Distribution = h.Distribution
	}
	if h.Netting != nil {
		v.Netting = h.Netting
	}
	return v
}
