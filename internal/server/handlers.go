package server

import (
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/logging"
	"github.com/xtxerr/telemetry/internal/wire"
)

type helloData struct {
	Message string `json:"message"`
}

type healthData struct {
	Status string `json:"status"`
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	wire.Write(w, http.StatusOK, wire.OK(helloData{Message: "hello, world."}))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cfg.Stats.Snapshot(r.Context())
	if err != nil {
		wire.WriteError(w, err)
		return
	}
	wire.Write(w, http.StatusOK, wire.OK(snap))
}

func (s *Server) handleLatency(w http.ResponseWriter, r *http.Request) {
	wire.Write(w, http.StatusOK, wire.OK(s.cfg.Store.Latency()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.Ping(r.Context()); err != nil {
		logging.WithContext(r.Context(), log).Warn("health check failed", "error", err)
		wire.Write(w, http.StatusServiceUnavailable, wire.NewErrorFromErr(err))
		return
	}
	wire.Write(w, http.StatusOK, wire.OK(healthData{Status: "ok"}))
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Ingester.MaxBodyBytes()

	// A declared length over the limit is refused without reading.
	if r.ContentLength > int64(limit) {
		wire.WriteError(w, fmt.Errorf("%w: body exceeds %s", errors.ErrPayloadTooLarge, humanize.IBytes(uint64(limit))))
		return
	}

	if _, err := s.cfg.Ingester.Ingest(r.Context(), r.Body); err != nil {
		l := logging.WithContext(r.Context(), log)
		if errors.IsClientError(err) {
			l.Debug("event rejected", "error", err)
		} else {
			l.Error("event not stored", "error", err)
		}
		wire.WriteError(w, err)
		return
	}

	wire.Write(w, http.StatusCreated, wire.OK(nil))
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	wire.Write(w, http.StatusNotFound, wire.NewErrorf(errors.CodeNotFound, "no route for %s %s", r.Method, r.URL.Path))
}
