package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	errorsmod "cosmossdk.io/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/hand"
	"github.com/stakeside/cashgame/pkg/table"
)

const tableAddr = "0xa2decf075b96c8e5858279b31f644501a140e8a7"

type stubOracle struct {
	view    *hand.View
	action  *table.ActionResult
	leave   string
	err     error
	gotRaw  string
	gotSig  string
	gotHand uint32
}

func (o *stubOracle) Info(_ context.Context, _ string) (*hand.View, error) {
	return o.view, o.err
}

func (o *stubOracle) HandInfo(_ context.Context, _ string, handID uint32) (*hand.View, error) {
	o.gotHand = handID
	return o.view, o.err
}

func (o *stubOracle) SubmitAction(_ context.Context, _, raw string) (*table.ActionResult, error) {
	o.gotRaw = raw
	return o.action, o.err
}

func (o *stubOracle) RevealCards(_ context.Context, _, raw string, _ []int) (*hand.View, error) {
	o.gotRaw = raw
	return o.view, o.err
}

func (o *stubOracle) RecordLeaveIntent(_ context.Context, _, raw string) (string, error) {
	o.gotRaw = raw
	return o.leave, o.err
}

func (o *stubOracle) RecordNettingSignature(_ context.Context, _ string, handID uint32, sig string) error {
	o.gotHand = handID
	o.gotSig = sig
	return o.err
}

func (o *stubOracle) ForceTimeout(_ context.Context, _ string) error {
	return o.err
}

func newTestServer(o *stubOracle) *httptest.Server {
	return httptest.NewServer(New(nil, o, nil).Router())
}

func TestInfoRoute(t *testing.T) {
	o := &stubOracle{view: &hand.View{HandID: 3, State: hand.StateFlop}}
	srv := newTestServer(o)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/table/" + tableAddr + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view hand.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, uint32(3), view.HandID)
	assert.Equal(t, hand.StateFlop, view.State)
}

func TestHandInfoRoute(t *testing.T) {
	o := &stubOracle{view: &hand.View{HandID: 2}}
	srv := newTestServer(o)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/table/" + tableAddr + "/hand/2")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint32(2), o.gotHand)

	resp, err = http.Get(srv.URL + "/table/" + tableAddr + "/hand/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPayRoute(t *testing.T) {
	o := &stubOracle{action: &table.ActionResult{Cards: []int{12, 44}}}
	srv := newTestServer(o)
	defer srv.Close()

	body := `{"receipt":"0xabcdef"}`
	resp, err := http.Post(srv.URL+"/table/"+tableAddr+"/pay", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0xabcdef", o.gotRaw)

	var rsp table.ActionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rsp))
	assert.Equal(t, []int{12, 44}, rsp.Cards)
}

func TestLeaveRoute(t *testing.T) {
	o := &stubOracle{leave: "0x99"}
	srv := newTestServer(o)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/table/"+tableAddr+"/leave", "application/json",
		strings.NewReader(`{"receipt":"0x11"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rsp map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rsp))
	assert.Equal(t, "0x99", rsp["leaveReceipt"])
}

func TestNettingRoute(t *testing.T) {
	o := &stubOracle{}
	srv := newTestServer(o)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/table/"+tableAddr+"/netting/7", "application/json",
		strings.NewReader(`{"nettingSig":"0x55"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint32(7), o.gotHand)
	assert.Equal(t, "0x55", o.gotSig)
}

func TestMalformedBody(t *testing.T) {
	srv := newTestServer(&stubOracle{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/table/"+tableAddr+"/pay", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errorsmod.Wrap(errs.ErrBadRequest, "bad"), http.StatusBadRequest},
		{errorsmod.Wrap(errs.ErrUnauthorized, "nope"), http.StatusUnauthorized},
		{errorsmod.Wrap(errs.ErrForbidden, "denied"), http.StatusForbidden},
		{errorsmod.Wrap(errs.ErrNotFound, "missing"), http.StatusNotFound},
		{errorsmod.Wrap(errs.ErrConflict, "stale"), http.StatusConflict},
	}
	for _, tc := range cases {
		srv := newTestServer(&stubOracle{err: tc.err})
		resp, err := http.Post(srv.URL+"/table/"+tableAddr+"/timeout", "application/json",
			strings.NewReader(`{}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.status, resp.StatusCode)
		srv.Close()
	}
}
