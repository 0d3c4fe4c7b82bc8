package rpc

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/zkfocil/zkfocil/consensus"
	"github.com/zkfocil/zkfocil/log"
)

// OracleService serves GET /zk-proof backed by a local oracle, evaluating
// each request in the current unix-second bucket.
type OracleService struct {
	oracle *consensus.LocalOracle
	now    func() time.Time
	log    *log.Logger
}

// NewOracleService creates the service. A nil clock uses time.Now.
func NewOracleService(oracle *consensus.LocalOracle, now func() time.Time, logger *log.Logger) *OracleService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}
	return &OracleService{oracle: oracle, now: now, log: logger.Module("oracle")}
}

// NewRouter registers the proof endpoint.
func (s *OracleService) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(CORSMiddleware(DefaultCORSConfig()))
	r.HandleFunc(consensus.ProofPath, s.HandleProof).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return r
}

// HandleProof answers GET /zk-proof?address=<addr>.
func (s *OracleService) HandleProof(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "address must be a 20-byte hex string")
		return
	}
	addr := common.HexToAddress(raw)
	out, err := s.oracle.Evaluate(r.Context(), addr, uint64(s.now().Unix()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Debug("Proof issued", "address", addr, "elected", out.Elected)
	writeJSON(w, http.StatusOK, consensus.ProofResponse{
		Proof:       out.Proof,
		Elected:     out.Elected,
		PrivateData: out.Record,
	})
}
