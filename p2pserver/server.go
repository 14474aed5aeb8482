package p2pserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/chain"
	"github.com/zeyxx/CYNIC-sub012/events"
	"github.com/zeyxx/CYNIC-sub012/exception"
	"github.com/zeyxx/CYNIC-sub012/jsonx"
	"github.com/zeyxx/CYNIC-sub012/logx"
)

// FinalityNotice is the inbound body of POST /finality.
type FinalityNotice struct {
	BlockHash     string `json:"block_hash"`
	Slot          uint64 `json:"slot"`
	Status        string `json:"status"`
	Confirmations int    `json:"confirmations"`
}

type proposeResponse struct {
	Accepted bool   `json:"accepted"`
	Slot     uint64 `json:"slot,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Server exposes the node's P2P surface: peers push produced blocks to
// /propose and the consensus layer pushes finality signals to /finality.
type Server struct {
	manager *chain.Manager
	bus     *events.EventBus
	srv     *http.Server
}

func NewServer(manager *chain.Manager, bus *events.EventBus) *Server {
	return &Server{manager: manager, bus: bus}
}

// Start begins serving on addr.
func (s *Server) Start(addr string) {
	router := mux.NewRouter()
	router.HandleFunc("/propose", s.handlePropose).Methods(http.MethodPost)
	router.HandleFunc("/finality", s.handleFinality).Methods(http.MethodPost)
	router.HandleFunc("/head", s.handleHead).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	exception.SafeGo("p2p-http-server", func() {
		logx.Info("P2PSERVER", "Listening on ", addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Error("P2PSERVER", "Server stopped: ", err)
		}
	})
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var b block.Block
	if err := jsonx.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, proposeResponse{Error: "malformed block"})
		return
	}

	result := s.manager.ReceiveBlock(&b)
	if !result.Accepted {
		writeJSON(w, http.StatusUnprocessableEntity, proposeResponse{Error: result.Error})
		return
	}
	writeJSON(w, http.StatusOK, proposeResponse{Accepted: true, Slot: b.Slot})
}

func (s *Server) handleFinality(w http.ResponseWriter, r *http.Request) {
	var notice FinalityNotice
	if err := jsonx.NewDecoder(r.Body).Decode(&notice); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed notice"})
		return
	}

	if s.bus != nil {
		s.bus.Publish(events.NewBlockFinality(notice.BlockHash, notice.Slot, notice.Status, notice.Confirmations))
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	head := s.manager.GetHead()
	if head == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no head"})
		return
	}
	writeJSON(w, http.StatusOK, head)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.GetStatus())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := jsonx.NewEncoder(w).Encode(v); err != nil {
		logx.Error("P2PSERVER", "Failed to encode response: ", err)
	}
}
