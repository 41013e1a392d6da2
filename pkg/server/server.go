// Package server exposes the table oracle over HTTP: JSON endpoints for
// receipt submission and hand queries, and a websocket feed of hand updates
// per table.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"github.com/decred/slog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stakeside/cashgame/pkg/errs"
	"github.com/stakeside/cashgame/pkg/hand"
	"github.com/stakeside/cashgame/pkg/table"
)

// Oracle is the engine surface the HTTP layer drives.
type Oracle interface {
	Info(ctx context.Context, tableAddr string) (*hand.View, error)
	HandInfo(ctx context.Context, tableAddr string, handID uint32) (*hand.View, error)
	SubmitAction(ctx context.Context, tableAddr, raw string) (*table.ActionResult, error)
	RevealCards(ctx context.Context, tableAddr, raw string, cards []int) (*hand.View, error)
	RecordLeaveIntent(ctx context.Context, tableAddr, raw string) (string, error)
	RecordNettingSignature(ctx context.Context, tableAddr string, handID uint32, sigHex string) error
	ForceTimeout(ctx context.Context, tableAddr string) error
}

// Server routes oracle requests.
type Server struct {
	log    slog.Logger
	oracle Oracle
	hub    *Hub
}

func New(log slog.Logger, oracle Oracle, hub *Hub) *Server {
	if log == nil {
		log = slog.Disabled
	}
	return &Server{log: log, oracle: oracle, hub: hub}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/table/{tableAddr}", func(r chi.Router) {
		r.Get("/info", s.handleInfo)
		r.Get("/hand/{handId}", s.handleHandInfo)
		r.Post("/pay", s.handlePay)
		r.Post("/show", s.handleShow)
		r.Post("/leave", s.handleLeave)
		r.Post("/netting/{handId}", s.handleNetting)
		r.Post("/timeout", s.handleTimeout)
	})
	if s.hub != nil {
		r.Get("/ws/{tableAddr}", func(w http.ResponseWriter, req *http.Request) {
			s.hub.Subscribe(w, req, chi.URLParam(req, "tableAddr"))
		})
	}
	return r
}

// receiptRequest is the common POST body: one raw signed receipt, plus the
// claimed hole cards on show.
type receiptRequest struct {
	Receipt string `json:"receipt"`
	Cards   []int  `json:"cards,omitempty"`
}

type nettingRequest struct {
	NettingSig string `json:"nettingSig"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	view, err := s.oracle.Info(r.Context(), chi.URLParam(r, "tableAddr"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHandInfo(w http.ResponseWriter, r *http.Request) {
	handID, err := parseHandID(chi.URLParam(r, "handId"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.oracle.HandInfo(r.Context(), chi.URLParam(r, "tableAddr"), handID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	rsp, err := s.oracle.SubmitAction(r.Context(), chi.URLParam(r, "tableAddr"), req.Receipt)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rsp)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	view, err := s.oracle.RevealCards(r.Context(), chi.URLParam(r, "tableAddr"), req.Receipt, req.Cards)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	leaveReceipt, err := s.oracle.RecordLeaveIntent(r.Context(), chi.URLParam(r, "tableAddr"), req.Receipt)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"leaveReceipt": leaveReceipt})
}

func (s *Server) handleNetting(w http.ResponseWriter, r *http.Request) {
	handID, err := parseHandID(chi.URLParam(r, "handId"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var req nettingRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	err = s.oracle.RecordNettingSignature(r.Context(), chi.URLParam(r, "tableAddr"), handID, req.NettingSig)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTimeout(w http.ResponseWriter, r *http.Request) {
	if err := s.oracle.ForceTimeout(r.Context(), chi.URLParam(r, "tableAddr")); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func parseHandID(raw string) (uint32, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errorsmod.Wrapf(errs.ErrBadRequest, "handId %q invalid", raw)
	}
	return uint32(id), nil
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeErr(w, errorsmod.Wrap(errs.ErrBadRequest, "malformed request body"))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("write response: %v", err)
	}
}

// writeErr maps the engine's error kinds onto HTTP status codes.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errorsmod.IsOf(err, errs.ErrBadRequest):
		status = http.StatusBadRequest
	case errorsmod.IsOf(err, errs.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errorsmod.IsOf(err, errs.ErrForbidden):
		status = http.StatusForbidden
	case errorsmod.IsOf(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errorsmod.IsOf(err, errs.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Errorf("request failed: %v", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
