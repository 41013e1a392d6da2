// Package chain reads table contract state and encodes the settlement
// payload players and oracle countersign to net a table on chain.
package chain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"github.com/stakeside/cashgame/pkg/errs"
)

// Seat is one position of a table contract's lineup.
type Seat struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
	// ExitHand is non-zero once the contract recorded a leave request.
	ExitHand uint32 `json:"exitHand,omitempty"`
}

// Lineup is the contract-side view of a table.
type Lineup struct {
	LastHandNetted uint32 `json:"lastHandNetted"`
	Seats          []Seat `json:"lineup"`
	SmallBlind     int64  `json:"smallBlind"`
}

// Reader fetches contract state for a table.
type Reader interface {
	Lineup(ctx context.Context, tableAddr string) (*Lineup, error)
	SmallBlind(ctx context.Context, tableAddr string) (int64, error)
}

const (
	addrLen   = 20
	amountLen = 8
)

// Party is one settlement line: addr receives or keeps amount.
type Party struct {
	Addr   string
	Amount int64
}

// EncodeSettlement builds the byte payload every party signs to settle all
// hands up to and including handID. The layout is the hand id, the low 16
// bytes of the table address, then one amount/address pair per party.
func EncodeSettlement(tableAddr string, handID uint32, parties []Party) (string, error) {
	table, err := parseAddr(tableAddr)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 0, 4+16+len(parties)*(amountLen+addrLen))
	buf = binary.BigEndian.AppendUint32(buf, handID)
	buf = append(buf, table[4:]...)
	for _, p := range parties {
		addr, err := parseAddr(p.Addr)
		if err != nil {
			return "", err
		}
		buf = binary.BigEndian.AppendUint64(buf, uint64(p.Amount))
		buf = append(buf, addr...)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

func parseAddr(addr string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(addr, "0x"))
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrBadRequest, "address %s: %v", addr, err)
	}
	if len(b) != addrLen {
		return nil, errorsmod.Wrap(errs.ErrBadRequest, fmt.Sprintf("address %s: want %d bytes", addr, addrLen))
	}
	return b, nil
}
