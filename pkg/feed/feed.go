// Package feed turns hand writes into notifications. Every insert or modify
// of a hand row produces a Change; the Dispatcher diffs old and new state
// and fans out websocket updates plus the settlement subjects the table
// workers consume.
package feed

import (
	"context"
	"fmt"

	"github.com/decred/slog"

	"github.com/stakeside/cashgame/pkg/hand"
	"github.com/stakeside/cashgame/pkg/receipt"
)

// Kind tags what happened to the hand row.
type Kind int

const (
	KindInsert Kind = iota
	KindModify
	KindRemove
)

// Change is one hand write. Old is nil on insert.
type Change struct {
	Kind      Kind
	TableAddr string
	Old       *hand.Hand
	New       *hand.Hand
}

// Sink consumes hand changes.
type Sink interface {
	Offer(ch Change)
}

// Notification subjects, qualified per table as "<subject>::<tableAddr>".
const (
	SubjectTableLeave           = "TableLeave"
	SubjectHandComplete         = "HandComplete"
	SubjectTableNettingRequest  = "TableNettingRequest"
	SubjectTableNettingComplete = "TableNettingComplete"
)

// Subject builds the per-table subject string.
func Subject(kind, tableAddr string) string {
	return kind + "::" + tableAddr
}

// LeaveMessage announces a seat's recorded exit.
type LeaveMessage struct {
	LeaverAddr string `json:"leaverAddr"`
	TableAddr  string `json:"tableAddr"`
	ExitHand   uint32 `json:"exitHand"`
}

// HandMessage names one hand of one table.
type HandMessage struct {
	TableAddr string `json:"tableAddr"`
	HandID    uint32 `json:"handId"`
}

// NettingMessage carries a completely signed settlement.
type NettingMessage struct {
	TableAddr string        `json:"tableAddr"`
	HandID    uint32        `json:"handId"`
	Netting   *hand.Netting `json:"netting"`
}

// Publisher delivers subject-addressed messages to the settlement workers.
type Publisher interface {
	Publish(ctx context.Context, subject string, msg interface{}) error
}

// Broadcaster pushes hand updates to clients subscribed to a table.
type Broadcaster interface {
	Broadcast(tableAddr string, upd *hand.Update)
}

// HandJudge decides whether a hand has finished.
type HandJudge interface {
	CheckForNextHand(hd *hand.Hand) bool
}

// Dispatcher derives notifications from hand changes.
type Dispatcher struct {
	log   slog.Logger
	judge HandJudge
	rc    *receipt.Cache
	pub   Publisher
	bc    Broadcaster
}

func NewDispatcher(log slog.Logger, judge HandJudge, rc *receipt.Cache, pub Publisher, bc Broadcaster) *Dispatcher {
	if log == nil {
		log = slog.Disabled
	}
	return &Dispatcher{log: log, judge: judge, rc: rc, pub: pub, bc: bc}
}

// Process fans one change out: clients always get the fresh public view,
// and diffs against the old image decide which settlement subjects fire.
func (d *Dispatcher) Process(ctx context.Context, ch Change) error {
	if ch.Kind == KindRemove || ch.New == nil {
		d.log.Debugf("ignoring removal for table %s", ch.TableAddr)
		return nil
	}

	if d.bc != nil {
		d.bc.Broadcast(ch.TableAddr, &hand.Update{
			Type:    "handUpdate",
			Payload: hand.PublicView(ch.New, d.rc),
		})
	}
	if ch.Kind != KindModify || ch.Old == nil {
		return nil
	}

	if err := d.publishLeaves(ctx, ch); err != nil {
		return err
	}
	if err := d.publishHandComplete(ctx, ch); err != nil {
		return err
	}
	return d.publishNettingComplete(ctx, ch)
}

// publishLeaves announces seats whose exit hand was just recorded. An exit
// for an already finished hand immediately asks for netting at that hand.
func (d *Dispatcher) publishLeaves(ctx context.Context, ch Change) error {
	for i := range ch.New.Lineup {
		seat := &ch.New.Lineup[i]
		if seat.ExitHand == 0 {
			continue
		}
		if i < len(ch.Old.Lineup) && ch.Old.Lineup[i].ExitHand != 0 {
			continue
		}
		err := d.pub.Publish(ctx, Subject(SubjectTableLeave, ch.TableAddr), &LeaveMessage{
			LeaverAddr: seat.Address,
			TableAddr:  ch.TableAddr,
			ExitHand:   seat.ExitHand,
		})
		if err != nil {
			return err
		}
		if seat.ExitHand < ch.New.HandID {
			err = d.pub.Publish(ctx, Subject(SubjectTableNettingRequest, ch.TableAddr), &HandMessage{
				TableAddr: ch.TableAddr,
				HandID:    seat.ExitHand,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// publishHandComplete fires once per hand, on the change that finished it.
// Completion of the hand a seat exits at also requests netting, unless a
// netting round already started for it. Seats with an earlier exitHand had
// their netting requested when the leave was recorded.
func (d *Dispatcher) publishHandComplete(ctx context.Context, ch Change) error {
	if !d.judge.CheckForNextHand(ch.New) || d.judge.CheckForNextHand(ch.Old) {
		return nil
	}
	err := d.pub.Publish(ctx, Subject(SubjectHandComplete, ch.TableAddr), &HandMessage{
		TableAddr: ch.TableAddr,
		HandID:    ch.New.HandID,
	})
	if err != nil {
		return err
	}
	if ch.New.Netting != nil {
		return nil
	}
	for i := range ch.New.Lineup {
		if ch.New.Lineup[i].ExitHand == ch.New.HandID {
			return d.pub.Publish(ctx, Subject(SubjectTableNettingRequest, ch.TableAddr), &HandMessage{
				TableAddr: ch.TableAddr,
				HandID:    ch.New.HandID,
			})
		}
	}
	return nil
}

// publishNettingComplete fires when the last missing signature arrived:
// every occupied seat plus the oracle signed, the signature set grew with
// this change, and the settlement has not reached the contract yet.
func (d *Dispatcher) publishNettingComplete(ctx context.Context, ch Change) error {
	if ch.New.Netting == nil || ch.Old.Netting == nil || ch.New.Netted {
		return nil
	}
	if len(ch.New.Netting.Sigs) <= len(ch.Old.Netting.Sigs) {
		return nil
	}
	occupied := 0
	for i := range ch.New.Lineup {
		if ch.New.Lineup[i].Occupied() {
			occupied++
		}
	}
	if len(ch.New.Netting.Sigs) < occupied+1 {
		return nil
	}
	return d.pub.Publish(ctx, Subject(SubjectTableNettingComplete, ch.TableAddr), &NettingMessage{
		TableAddr: ch.TableAddr,
		HandID:    ch.New.HandID,
		Netting:   ch.New.Netting,
	})
}

// LogPublisher writes notifications to the log; it stands in when no
// external publisher is configured.
type LogPublisher struct {
	Log slog.Logger
}

func (p *LogPublisher) Publish(_ context.Context, subject string, msg interface{}) error {
	p.Log.Infof("notification %s: %s", subject, fmt.Sprintf("%+v", msg))
	return nil
}
