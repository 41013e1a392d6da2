package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSettlement(t *testing.T) {
	parties := []Party{
		{Addr: "0x82e8c6cf42c8d1ff9594b17a3f50e94a12cc860f", Amount: 0},
		{Addr: "0xf3beac30c498d9e26865f34fcaa57dbb935b0d74", Amount: 59500},
		{Addr: "0xe10f3d125e5f4c753a6456fc37123cf17c6900f2", Amount: 40500},
	}

	payload, err := EncodeSettlement("0xa2decf075b96c8e5858279b31f644501a140e8a7", 2, parties)
	require.NoError(t, err)
	assert.Equal(t, "0x000000025b96c8e5858279b31f644501a140e8a7"+
		"000000000000000082e8c6cf42c8d1ff9594b17a3f50e94a12cc860f"+
		"000000000000e86cf3beac30c498d9e26865f34fcaa57dbb935b0d74"+
		"0000000000009e34e10f3d125e5f4c753a6456fc37123cf17c6900f2", payload)
}

func TestEncodeSettlementBadAddr(t *testing.T) {
	_, err := EncodeSettlement("0x1234", 1, nil)
	assert.Error(t, err)

	_, err = EncodeSettlement("0xa2decf075b96c8e5858279b31f644501a140e8a7", 1,
		[]Party{{Addr: "zz", Amount: 1}})
	assert.Error(t, err)
}

func TestClientLineup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/table/0xabc/lineup":
			json.NewEncoder(w).Encode(Lineup{
				LastHandNetted: 5,
				SmallBlind:     50,
				Seats: []Seat{
					{Address: "0xf3beac30c498d9e26865f34fcaa57dbb935b0d74", Amount: 50000},
					{Address: "0xe10f3d125e5f4c753a6456fc37123cf17c6900f2", Amount: 50000},
				},
			})
		case "/table/0xabc/config":
			json.NewEncoder(w).Encode(map[string]int64{"smallBlind": 50})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	lu, err := c.Lineup(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), lu.LastHandNetted)
	require.Len(t, lu.Seats, 2)
	assert.Equal(t, int64(50000), lu.Seats[0].Amount)

	sb, err := c.SmallBlind(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(50), sb)

	_, err = c.Lineup(context.Background(), "0xmissing")
	assert.Error(t, err)
}
