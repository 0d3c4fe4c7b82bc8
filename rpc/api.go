// Package rpc serves the producer's control API and the mock proof oracle
// over HTTP. Live log lines and gossiped blocks are streamed over
// WebSocket.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/zkfocil/zkfocil/core"
	"github.com/zkfocil/zkfocil/core/types"
	"github.com/zkfocil/zkfocil/eventlog"
	"github.com/zkfocil/zkfocil/log"
	"github.com/zkfocil/zkfocil/metrics"
	"github.com/zkfocil/zkfocil/producer"
)

// DefaultLogTail is the number of log lines GET /logs returns without ?n=.
const DefaultLogTail = 50

// Backend is the producer surface the API controls.
type Backend interface {
	Snapshot() *producer.Snapshot
	Chain() *core.Chain
	Events() *eventlog.Log
	Halt()
	Resume()
	SetInterval(ms int64) error
}

// BlockFeed streams gossiped blocks.
type BlockFeed interface {
	Subscribe(ctx context.Context) (<-chan *types.Block, error)
}

// API holds the dependencies of the control API handlers.
type API struct {
	backend Backend
	blocks  BlockFeed
	metrics http.Handler
	log     *log.Logger
}

// NewAPI creates the handler set. blocks and metricsHandler may be nil, in
// which case the corresponding routes are not mounted.
func NewAPI(backend Backend, blocks BlockFeed, metricsHandler http.Handler, logger *log.Logger) *API {
	if logger == nil {
		logger = log.Default()
	}
	return &API{
		backend: backend,
		blocks:  blocks,
		metrics: metricsHandler,
		log:     logger.Module("rpc"),
	}
}

// NewRouter registers every route.
func (a *API) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(CORSMiddleware(DefaultCORSConfig()))

	r.HandleFunc("/status", a.HandleStatus).Methods(http.MethodGet)
	r.HandleFunc("/chain", a.HandleChain).Methods(http.MethodGet)
	r.HandleFunc("/chain/{id}", a.HandleBlock).Methods(http.MethodGet)
	r.HandleFunc("/pool", a.HandlePool).Methods(http.MethodGet)
	r.HandleFunc("/logs", a.HandleLogs).Methods(http.MethodGet)
	r.HandleFunc("/halt", a.HandleHalt).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/resume", a.HandleResume).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/interval", a.HandleInterval).Methods(http.MethodPut, http.MethodOptions)

	r.HandleFunc("/ws/logs", a.HandleLogStream)
	if a.blocks != nil {
		r.HandleFunc("/ws/blocks", a.HandleBlockStream)
	}
	if a.metrics != nil {
		r.Handle(metrics.DefaultPath, a.metrics).Methods(http.MethodGet)
	}
	return r
}

// Status is the body of GET /status.
type Status struct {
	State            string `json:"state"`
	IsProducing      bool   `json:"isProducing"`
	IsRunning        bool   `json:"isRunning"`
	IntervalMs       int64  `json:"intervalMs"`
	Height           int    `json:"height"`
	PoolSize         int    `json:"poolSize"`
	CurrentNodeIndex int    `json:"currentNodeIndex"`
}

func statusOf(s *producer.Snapshot) Status {
	return Status{
		State:            s.State.String(),
		IsProducing:      s.IsProducing,
		IsRunning:        s.IsRunning,
		IntervalMs:       s.IntervalMs,
		Height:           s.Height(),
		PoolSize:         len(s.Pool),
		CurrentNodeIndex: s.CurrentNodeIndex,
	}
}

// HandleStatus returns the scheduler status.
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusOf(a.backend.Snapshot()))
}

// HandleChain returns every block, genesis first.
func (a *API) HandleChain(w http.ResponseWriter, r *http.Request) {
	chain := a.backend.Chain()
	if chain == nil {
		writeJSON(w, http.StatusOK, []*types.Block{})
		return
	}
	writeJSON(w, http.StatusOK, chain.Blocks())
}

// HandleBlock returns one block by id.
func (a *API) HandleBlock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block id")
		return
	}
	chain := a.backend.Chain()
	if chain == nil {
		writeError(w, http.StatusNotFound, core.ErrBlockNotFound.Error())
		return
	}
	block, err := chain.BlockByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, block)
}

// HandlePool returns the pending transactions in queue order.
func (a *API) HandlePool(w http.ResponseWriter, r *http.Request) {
	pool := a.backend.Snapshot().Pool
	if pool == nil {
		pool = []*types.Transaction{}
	}
	writeJSON(w, http.StatusOK, pool)
}

// HandleLogs returns the last ?n= log lines (default 50, 0 for all).
func (a *API) HandleLogs(w http.ResponseWriter, r *http.Request) {
	n := DefaultLogTail
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = v
	}
	writeJSON(w, http.StatusOK, a.backend.Events().Lines(n))
}

// HandleHalt suppresses future production attempts.
func (a *API) HandleHalt(w http.ResponseWriter, r *http.Request) {
	a.backend.Halt()
	a.log.Info("Halt requested", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, statusOf(a.backend.Snapshot()))
}

// HandleResume re-enables production attempts.
func (a *API) HandleResume(w http.ResponseWriter, r *http.Request) {
	a.backend.Resume()
	a.log.Info("Resume requested", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, statusOf(a.backend.Snapshot()))
}

// IntervalRequest is the body of PUT /interval.
type IntervalRequest struct {
	Ms int64 `json:"ms"`
}

// HandleInterval changes the block time.
func (a *API) HandleInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := a.backend.SetInterval(req.Ms); err != nil {
		if errors.Is(err, producer.ErrInvalidInterval) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusOf(a.backend.Snapshot()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
