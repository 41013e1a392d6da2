// End-to-end tests that run the oracle the way cmd/oracled wires it: a real
// SQLite database, the change-feed runner, the in-process settler and the
// chi router, with only the contract gateway faked over HTTP. They must run
// with `go test ./...` and not depend on external resources.

package e2e

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeside/cashgame/pkg/chain"
	"github.com/stakeside/cashgame/pkg/feed"
	"github.com/stakeside/cashgame/pkg/hand"
	"github.com/stakeside/cashgame/pkg/lineup"
	"github.com/stakeside/cashgame/pkg/receipt"
	"github.com/stakeside/cashgame/pkg/server"
	"github.com/stakeside/cashgame/pkg/store"
	"github.com/stakeside/cashgame/pkg/table"
)

const (
	tableAddr = "0xa2decf075b96c8e5858279b31f644501a140e8a7"

	p1Addr = "0xf3beac30c498d9e26865f34fcaa57dbb935b0d74"
	p1Priv = "0x278a5de700e29faae8e40e366ec5012b5ec63d36ec77e8a2417154cc1d25383f"
	p2Addr = "0xe10f3d125e5f4c753a6456fc37123cf17c6900f2"
	p2Priv = "0x7bc8feb5e1ce2927480de19d8bc1dc6874678c016ae53a2eec6a6e9df717bfac"

	oraclePriv = "0x94890218f2b0d04296f30aeafd13655eba4c5bbf1770273276fee52cbe3f2cb4"
)

// testEnv is one fully wired oracle instance backed by a real SQLite
// database. Each test spins up its own env so tests stay isolated.
type testEnv struct {
	t       *testing.T
	db      *store.DB
	manager *table.Manager
	runner  *feed.Runner
	httpSrv *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{t: t}

	db, err := store.Open(filepath.Join(t.TempDir(), "cashgame.sqlite"))
	require.NoError(t, err)
	env.db = db
	t.Cleanup(func() { _ = db.Close() })

	// Contract gateway: two seats with 50000 each, nothing netted yet.
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/lineup") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"lastHandNetted":0,"smallBlind":50,"lineup":[`+
			`{"address":%q,"amount":50000},{"address":%q,"amount":50000}]}`, p1Addr, p2Addr)
	}))
	t.Cleanup(gateway.Close)

	rc := receipt.NewCache()
	helper := lineup.New(rc)
	env.manager, err = table.New(table.Config{
		Store:      db,
		Chain:      chain.NewClient(gateway.URL),
		Helper:     helper,
		Receipts:   rc,
		OraclePriv: oraclePriv,
		Tables:     []string{tableAddr},
	})
	require.NoError(t, err)

	hub := server.NewHub(nil)
	settler := table.NewSettler(nil, env.manager, nil)
	dispatcher := feed.NewDispatcher(nil, helper, rc, settler, hub)
	env.runner = feed.NewRunner(nil, dispatcher, 64, 2)
	env.runner.Start()
	t.Cleanup(env.runner.Stop)
	db.AddSink(env.runner)

	env.httpSrv = httptest.NewServer(server.New(nil, env.manager, hub).Router())
	t.Cleanup(env.httpSrv.Close)
	return env
}

func (e *testEnv) get(path string, out interface{}) int {
	e.t.Helper()
	resp, err := http.Get(e.httpSrv.URL + path)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) post(path string, body interface{}, out interface{}) int {
	e.t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(e.t, err)
	resp, err := http.Post(e.httpSrv.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) pay(priv string, r *receipt.Receipt) int {
	e.t.Helper()
	raw, err := r.Sign(priv)
	require.NoError(e.t, err)
	return e.post("/table/"+tableAddr+"/pay", map[string]string{"receipt": raw}, nil)
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestTableBootstrap(t *testing.T) {
	env := newTestEnv(t)

	// A configured table without hands reports the settled seed.
	var view hand.View
	require.Equal(t, http.StatusOK, env.get("/table/"+tableAddr+"/info", &view))
	assert.Equal(t, uint32(0), view.HandID)
	assert.Equal(t, hand.StateShowdown, view.State)
	assert.NotEmpty(t, view.Distribution)

	// Unknown tables stay 404.
	require.Equal(t, http.StatusNotFound, env.get("/table/0x0011223344/info", nil))

	first, err := env.manager.NextHand(context.Background(), tableAddr)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), first.HandID)

	require.Equal(t, http.StatusOK, env.get("/table/"+tableAddr+"/info", &view))
	assert.Equal(t, uint32(1), view.HandID)
	assert.Equal(t, hand.StateWaiting, view.State)
}

func TestHandPlaysThroughAndNextHandOpens(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.NextHand(context.Background(), tableAddr)
	require.NoError(t, err)

	// Blinds: dealer posts small blind heads-up, the other seat the big.
	require.Equal(t, http.StatusOK, env.pay(p1Priv, receipt.NewBet(1, 50)))
	require.Equal(t, http.StatusOK, env.pay(p2Priv, receipt.NewBet(1, 100)))

	var view hand.View
	require.Equal(t, http.StatusOK, env.get("/table/"+tableAddr+"/info", &view))
	assert.Equal(t, hand.StatePreflop, view.State)

	// Undercalling is rejected, then the small blind folds.
	require.Equal(t, http.StatusUnauthorized, env.pay(p1Priv, receipt.NewBet(1, 80)))
	require.Equal(t, http.StatusOK, env.pay(p1Priv, receipt.NewFold(1, 50)))

	// The settler mints the distribution and opens hand 2.
	waitFor(t, "hand 2 to open", func() bool {
		var v hand.View
		return env.get("/table/"+tableAddr+"/info", &v) == http.StatusOK && v.HandID == 2
	})

	require.Equal(t, http.StatusOK, env.get("/table/"+tableAddr+"/hand/1", &view))
	require.NotEmpty(t, view.Distribution)
	dist, err := receipt.Decode(view.Distribution)
	require.NoError(t, err)
	require.Len(t, dist.Shares, 1)
	assert.Equal(t, p2Addr, dist.Shares[0].Addr)
	assert.Equal(t, int64(150), dist.Shares[0].Amount)
}

func TestLeaveTriggersNettingRound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.NextHand(context.Background(), tableAddr)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, env.pay(p1Priv, receipt.NewBet(1, 50)))
	require.Equal(t, http.StatusOK, env.pay(p2Priv, receipt.NewBet(1, 100)))
	require.Equal(t, http.StatusOK, env.pay(p1Priv, receipt.NewFold(1, 50)))
	waitFor(t, "hand 2 to open", func() bool {
		var v hand.View
		return env.get("/table/"+tableAddr+"/info", &v) == http.StatusOK && v.HandID == 2
	})

	// P2 wants out after hand 1; the oracle countersigns and the feed asks
	// for a netting round at that hand.
	leave, err := receipt.NewLeave(tableAddr, 1, p2Addr).Sign(p2Priv)
	require.NoError(t, err)
	var leaveRsp struct {
		LeaveReceipt string `json:"leaveReceipt"`
	}
	require.Equal(t, http.StatusOK,
		env.post("/table/"+tableAddr+"/leave", map[string]string{"receipt": leave}, &leaveRsp))
	assert.NotEmpty(t, leaveRsp.LeaveReceipt)

	var view hand.View
	waitFor(t, "netting round on hand 1", func() bool {
		return env.get("/table/"+tableAddr+"/hand/1", &view) == http.StatusOK && view.Netting != nil
	})
	require.Len(t, view.Netting.Sigs, 1, "oracle signs first")

	payload, err := hex.DecodeString(strings.TrimPrefix(view.Netting.NewBalances, "0x"))
	require.NoError(t, err)
	for _, priv := range []string{p1Priv, p2Priv} {
		sig, err := receipt.SignPayload(payload, priv)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, env.post("/table/"+tableAddr+"/netting/1",
			map[string]string{"nettingSig": "0x" + hex.EncodeToString(sig)}, nil))
	}

	require.Equal(t, http.StatusOK, env.get("/table/"+tableAddr+"/hand/1", &view))
	assert.Len(t, view.Netting.Sigs, 3, "oracle plus both seats")

	// Delivering twice conflicts.
	sig, err := receipt.SignPayload(payload, p1Priv)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, env.post("/table/"+tableAddr+"/netting/1",
		map[string]string{"nettingSig": "0x" + hex.EncodeToString(sig)}, nil))
}

func TestWebsocketBroadcast(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.NextHand(context.Background(), tableAddr)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(env.httpSrv.URL, "http") + "/ws/" + tableAddr
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The handshake returns before the hub registers the client.
	time.Sleep(100 * time.Millisecond)

	require.Equal(t, http.StatusOK, env.pay(p1Priv, receipt.NewBet(1, 50)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var upd hand.Update
	require.NoError(t, conn.ReadJSON(&upd))
	assert.Equal(t, "handUpdate", upd.Type)
	require.NotNil(t, upd.Payload)
	assert.Equal(t, uint32(1), upd.Payload.HandID)
	assert.Equal(t, hand.StateDealing, upd.Payload.State)
	assert.Empty(t, upd.Payload.Cards, "no board before the flop")
}
