package store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/feed"
	"github.com/stakeside/cashgame/pkg/hand"
)

const tableAddr = "0xa2decf075b96c8e5858279b31f644501a140e8a7"

type recordingSink struct {
	changes []feed.Change
}

func (s *recordingSink) Offer(ch feed.Change) {
	s.changes = append(s.changes, ch)
}

func openTestDB(t *testing.T) (*DB, *recordingSink) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "hands.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sink := &recordingSink{}
	db.AddSink(sink)
	return db, sink
}

func testHand(id uint32) *hand.Hand {
	return &hand.Hand{
		TableAddr: tableAddr,
		HandID:    id,
		State:     hand.StateWaiting,
		SB:        50,
		Changed:   123,
		Deck:      hand.NewDeck(),
		Lineup: []hand.Seat{
			{Address: "0xf3beac30c498d9e26865f34fcaa57dbb935b0d74"},
			{Address: "0xe10f3d125e5f4c753a6456fc37123cf17c6900f2"},
		},
	}
}

func TestInsertAndGet(t *testing.T) {
	db, sink := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, testHand(1)))

	got, ver, err := db.Hand(ctx, tableAddr, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
	assert.Equal(t, uint32(1), got.HandID)
	assert.Equal(t, hand.StateWaiting, got.State)
	assert.Len(t, got.Deck, 52)

	require.Len(t, sink.changes, 1)
	assert.Equal(t, feed.KindInsert, sink.changes[0].Kind)
	assert.Nil(t, sink.changes[0].Old)
}

func TestInsertDuplicateConflicts(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, testHand(1)))
	err := db.Insert(ctx, testHand(1))
	assert.True(t, errorsmod.IsOf(err, errs.ErrConflict))
}

func TestLastHand(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, testHand(1)))
	require.NoError(t, db.Insert(ctx, testHand(2)))

	got, ver, err := db.LastHand(ctx, tableAddr)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.HandID)
	assert.Equal(t, int64(1), ver)
}

func TestLastHandUnknownTable(t *testing.T) {
	db, _ := openTestDB(t)

	_, _, err := db.LastHand(context.Background(), "0x77aabb11ee")
	assert.True(t, errorsmod.IsOf(err, errs.ErrNotFound))
	assert.Contains(t, err.Error(), "table with addr")
}

func TestUpdateBumpsVersionAndEmits(t *testing.T) {
	db, sink := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, testHand(1)))

	h, ver, err := db.Hand(ctx, tableAddr, 1)
	require.NoError(t, err)
	h.State = hand.StateDealing
	require.NoError(t, db.Update(ctx, h, ver))

	got, ver2, err := db.Hand(ctx, tableAddr, 1)
	require.NoError(t, err)
	assert.Equal(t, hand.StateDealing, got.State)
	assert.Equal(t, ver+1, ver2)

	require.Len(t, sink.changes, 2)
	mod := sink.changes[1]
	assert.Equal(t, feed.KindModify, mod.Kind)
	assert.Equal(t, hand.StateWaiting, mod.Old.State)
	assert.Equal(t, hand.StateDealing, mod.New.State)
}

func TestUpdateStaleVersionConflicts(t *testing.T) {
	db, sink := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, testHand(1)))

	h, ver, err := db.Hand(ctx, tableAddr, 1)
	require.NoError(t, err)
	h.State = hand.StateDealing
	require.NoError(t, db.Update(ctx, h, ver))

	// Second writer with the old version loses.
	h2 := testHand(1)
	h2.State = hand.StatePreflop
	err = db.Update(ctx, h2, ver)
	assert.True(t, errorsmod.IsOf(err, errs.ErrConflict))

	got, _, err := db.Hand(ctx, tableAddr, 1)
	require.NoError(t, err)
	assert.Equal(t, hand.StateDealing, got.State)
	assert.Len(t, sink.changes, 2, "a rejected write should not emit a change")
}

// overlapSink flags any two deliveries running at the same time.
type overlapSink struct {
	inFlight atomic.Int32
	overlaps atomic.Int32
	seen     atomic.Int32
}

func (s *overlapSink) Offer(feed.Change) {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	time.Sleep(time.Millisecond)
	s.inFlight.Add(-1)
	s.seen.Add(1)
}

func TestChangesEmitInCommitOrder(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "hands.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sink := &overlapSink{}
	db.AddSink(sink)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, testHand(1)))
	require.NoError(t, db.Insert(ctx, testHand(2)))

	// Two writers on distinct hands of the same table, like an action on
	// the current hand racing a netting signature on a prior one.
	var wg sync.WaitGroup
	work := func(id uint32) {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			h, ver, err := db.Hand(ctx, tableAddr, id)
			if !assert.NoError(t, err) {
				return
			}
			h.Changed++
			if !assert.NoError(t, db.Update(ctx, h, ver)) {
				return
			}
		}
	}
	wg.Add(2)
	go work(1)
	go work(2)
	wg.Wait()

	assert.Equal(t, int32(42), sink.seen.Load())
	assert.Zero(t, sink.overlaps.Load(), "changes of one table must be delivered one at a time")

	_, ver, err := db.Hand(ctx, tableAddr, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(21), ver)
}
