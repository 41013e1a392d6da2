// Package receipt implements the signed-action wire format used between
// players and the table oracle. A receipt is a typed payload signed with the
// player's secp256k1 key; the raw hex encoding doubles as the action's
// identity (replay detection is plain string equality).
package receipt

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Type identifies the action a receipt authorizes.
type Type byte

const (
	TypeBet Type = iota + 1
	TypeFold
	TypeSitOut
	TypeCheckPre
	TypeCheckFlop
	TypeCheckTurn
	TypeCheckRiver
	TypeShow
	TypeMuck
	TypeLeave
	TypeDistribution
)

var typeNames = map[Type]string{
	TypeBet:          "bet",
	TypeFold:         "fold",
	TypeSitOut:       "sitOut",
	TypeCheckPre:     "checkPre",
	TypeCheckFlop:    "checkFlop",
	TypeCheckTurn:    "checkTurn",
	TypeCheckRiver:   "checkRiver",
	TypeShow:         "show",
	TypeMuck:         "muck",
	TypeLeave:        "leave",
	TypeDistribution: "distribution",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", byte(t))
}

// IsCheck reports whether t is one of the street-scoped check types.
func (t Type) IsCheck() bool {
	switch t {
	case TypeCheckPre, TypeCheckFlop, TypeCheckTurn, TypeCheckRiver:
		return true
	}
	return false
}

// Share is one beneficiary entry of a distribution receipt.
type Share struct {
	Addr   string
	Amount int64
}

// Receipt is a decoded signed action. Raw holds the exact wire encoding the
// receipt was decoded from; two receipts are the same action iff their Raw
// strings are equal.
type Receipt struct {
	Type   Type
	HandID uint32
	Amount int64

	// leave receipts only
	TableAddr string
	Leaver    string

	// distribution receipts only
	ClaimID uint32
	Shares  []Share

	Signer string
	Raw    string
}

const (
	sigLen  = 65
	addrLen = 20
)

// payload returns the unsigned byte encoding of r.
func (r *Receipt) payload() ([]byte, error) {
	switch r.Type {
	case TypeLeave:
		table, err := parseAddr(r.TableAddr)
		if err != nil {
			return nil, fmt.Errorf("leave receipt table addr: %v", err)
		}
		leaver, err := parseAddr(r.Leaver)
		if err != nil {
			return nil, fmt.Errorf("leave receipt leaver addr: %v", err)
		}
		buf := make([]byte, 0, 1+4+2*addrLen)
		buf = append(buf, byte(r.Type))
		buf = binary.BigEndian.AppendUint32(buf, r.HandID)
		buf = append(buf, table...)
		buf = append(buf, leaver...)
		return buf, nil
	case TypeDistribution:
		buf := make([]byte, 0, 1+4+4+len(r.Shares)*(addrLen+8))
		buf = append(buf, byte(r.Type))
		buf = binary.BigEndian.AppendUint32(buf, r.HandID)
		buf = binary.BigEndian.AppendUint32(buf, r.ClaimID)
		for _, s := range r.Shares {
			addr, err := parseAddr(s.Addr)
			if err != nil {
				return nil, fmt.Errorf("distribution share addr: %v", err)
			}
			buf = append(buf, addr...)
			buf = binary.BigEndian.AppendUint64(buf, uint64(s.Amount))
		}
		return buf, nil
	default:
		if _, ok := typeNames[r.Type]; !ok {
			return nil, fmt.Errorf("unknown receipt type %d", r.Type)
		}
		buf := make([]byte, 0, 1+4+8)
		buf = append(buf, byte(r.Type))
		buf = binary.BigEndian.AppendUint32(buf, r.HandID)
		buf = binary.BigEndian.AppendUint64(buf, uint64(r.Amount))
		return buf, nil
	}
}

// Sign signs r with the given private key (hex, 0x-optional) and returns the
// wire encoding: 0x || sig(65, r||s||v) || payload.
func (r *Receipt) Sign(privHex string) (string, error) {
	payload, err := r.payload()
	if err != nil {
		return "", err
	}
	sig, err := SignPayload(payload, privHex)
	if err != nil {
		return "", err
	}
	raw := "0x" + hex.EncodeToString(append(sig, payload...))
	return raw, nil
}

// Decode parses a wire-encoded receipt and recovers its signer.
func Decode(raw string) (*Receipt, error) {
	s := strings.TrimPrefix(raw, "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("receipt is not valid hex: %v", err)
	}
	if len(data) < sigLen+1 {
		return nil, fmt.Errorf("receipt too short: %d bytes", len(data))
	}
	sig, payload := data[:sigLen], data[sigLen:]

	rcpt := &Receipt{Type: Type(payload[0]), Raw: raw}
	body := payload[1:]
	switch rcpt.Type {
	case TypeLeave:
		if len(body) != 4+2*addrLen {
			return nil, fmt.Errorf("leave receipt payload malformed")
		}
		rcpt.HandID = binary.BigEndian.Uint32(body[:4])
		rcpt.TableAddr = encodeAddr(body[4 : 4+addrLen])
		rcpt.Leaver = encodeAddr(body[4+addrLen:])
	case TypeDistribution:
		if len(body) < 8 || (len(body)-8)%(addrLen+8) != 0 {
			return nil, fmt.Errorf("distribution receipt payload malformed")
		}
		rcpt.HandID = binary.BigEndian.Uint32(body[:4])
		rcpt.ClaimID = binary.BigEndian.Uint32(body[4:8])
		for rest := body[8:]; len(rest) > 0; rest = rest[addrLen+8:] {
			rcpt.Shares = append(rcpt.Shares, Share{
				Addr:   encodeAddr(rest[:addrLen]),
				Amount: int64(binary.BigEndian.Uint64(rest[addrLen : addrLen+8])),
			})
		}
	default:
		if _, ok := typeNames[rcpt.Type]; !ok {
			return nil, fmt.Errorf("unknown receipt type %d", payload[0])
		}
		if len(body) != 12 {
			return nil, fmt.Errorf("%s receipt payload malformed", rcpt.Type)
		}
		rcpt.HandID = binary.BigEndian.Uint32(body[:4])
		rcpt.Amount = int64(binary.BigEndian.Uint64(body[4:]))
	}

	signer, err := RecoverSigner(payload, sig)
	if err != nil {
		return nil, err
	}
	rcpt.Signer = signer
	return rcpt, nil
}

// NewBet builds an unsigned bet receipt. The same helper family exists for
// every type the engine validates; they keep test setup terse.
func NewBet(handID uint32, amount int64) *Receipt {
	return &Receipt{Type: TypeBet, HandID: handID, Amount: amount}
}

func NewFold(handID uint32, amount int64) *Receipt {
	return &Receipt{Type: TypeFold, HandID: handID, Amount: amount}
}

func NewSitOut(handID uint32, amount int64) *Receipt {
	return &Receipt{Type: TypeSitOut, HandID: handID, Amount: amount}
}

func NewCheck(t Type, handID uint32, amount int64) *Receipt {
	return &Receipt{Type: t, HandID: handID, Amount: amount}
}

func NewShow(handID uint32, amount int64) *Receipt {
	return &Receipt{Type: TypeShow, HandID: handID, Amount: amount}
}

func NewMuck(handID uint32, amount int64) *Receipt {
	return &Receipt{Type: TypeMuck, HandID: handID, Amount: amount}
}

func NewLeave(tableAddr string, handID uint32, leaver string) *Receipt {
	return &Receipt{Type: TypeLeave, HandID: handID, TableAddr: tableAddr, Leaver: leaver}
}

func NewDistribution(handID, claimID uint32, shares []Share) *Receipt {
	return &Receipt{Type: TypeDistribution, HandID: handID, ClaimID: claimID, Shares: shares}
}

func parseAddr(addr string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(addr), "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != addrLen {
		return nil, fmt.Errorf("address must be %d bytes, got %d", addrLen, len(b))
	}
	return b, nil
}

func encodeAddr(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
