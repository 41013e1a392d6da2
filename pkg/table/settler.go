package table

import (
	"context"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/decred/slog"

	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/feed"
)

// Settler consumes the dispatcher's settlement subjects in process: a
// completed hand gets its distribution minted and the next hand opened, a
// netting request opens the netting round, and a fully signed netting is
// marked netted once handed to the chain. Every message is forwarded to the
// next publisher so external consumers still see the full feed.
type Settler struct {
	log  slog.Logger
	m    *Manager
	next feed.Publisher
}

func NewSettler(log slog.Logger, m *Manager, next feed.Publisher) *Settler {
	if log == nil {
		log = slog.Disabled
	}
	return &Settler{log: log, m: m, next: next}
}

var _ feed.Publisher = (*Settler)(nil)

func (s *Settler) Publish(ctx context.Context, subject string, msg interface{}) error {
	switch {
	case strings.HasPrefix(subject, feed.SubjectHandComplete+"::"):
		if hm, ok := msg.(*feed.HandMessage); ok {
			s.handComplete(ctx, hm)
		}
	case strings.HasPrefix(subject, feed.SubjectTableNettingRequest+"::"):
		if hm, ok := msg.(*feed.HandMessage); ok {
			if err := s.m.StartNetting(ctx, hm.TableAddr, hm.HandID); err != nil &&
				!errorsmod.IsOf(err, errs.ErrConflict) {
				s.log.Warnf("start netting for hand %d: %v", hm.HandID, err)
			}
		}
	case strings.HasPrefix(subject, feed.SubjectTableNettingComplete+"::"):
		if nm, ok := msg.(*feed.NettingMessage); ok {
			if err := s.m.MarkNetted(ctx, nm.TableAddr, nm.HandID); err != nil {
				s.log.Warnf("mark hand %d netted: %v", nm.HandID, err)
			}
		}
	}
	if s.next == nil {
		return nil
	}
	return s.next.Publish(ctx, subject, msg)
}

func (s *Settler) handComplete(ctx context.Context, hm *feed.HandMessage) {
	if _, err := s.m.ResolveHand(ctx, hm.TableAddr, hm.HandID); err != nil {
		s.log.Warnf("resolve hand %d: %v", hm.HandID, err)
		return
	}
	if _, err := s.m.NextHand(ctx, hm.TableAddr); err != nil {
		// Conflict means a concurrent worker opened it first.
		if !errorsmod.IsOf(err, errs.ErrConflict) {
			s.log.Warnf("open hand after %d: %v", hm.HandID, err)
		}
	}
}
