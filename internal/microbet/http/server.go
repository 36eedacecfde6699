package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/engine"
	"github.com/radieske/microbet-engine-poc/internal/ledger"
	"github.com/radieske/microbet-engine-poc/internal/microbet/dto"
	"github.com/radieske/microbet-engine-poc/internal/microbet/metrics"
	"github.com/radieske/microbet-engine-poc/internal/resolver"
)

// BetStore arquiva apostas admitidas (Postgres). Opcional: falha de
// arquivo não rejeita a aposta, só loga; o TransactionLog é a fonte de
// verdade. BetStatus atende consultas de apostas já descartadas da
// memória pelo período de retenção do resolver.
type BetStore interface {
	InsertBet(ctx context.Context, betID, userID, streamID, windowID, betType string, stakeCents int64, odd float64, windowSeconds int64) error
	BetStatus(ctx context.Context, betID string) (status string, payoutCents int64, err error)
}

// Server expõe a API pública do engine de micro-apostas.
type Server struct {
	log  *zap.Logger
	eng  *engine.Engine
	led  *ledger.Ledger
	res  *resolver.Resolver
	bets BetStore // pode ser nil

	reserveFraction float64 // fração do depósito que vira reserva de ativação
}

func NewServer(log *zap.Logger, eng *engine.Engine, led *ledger.Ledger, res *resolver.Resolver, bets BetStore, reserveFraction float64) *Server {
	return &Server{log: log, eng: eng, led: led, res: res, bets: bets, reserveFraction: reserveFraction}
}

// Router retorna o mux com as rotas públicas.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bets", s.placeBet)      // POST
	mux.HandleFunc("/bets/", s.getBetStatus) // GET /bets/{id}
	mux.HandleFunc("/balance", s.getBalance) // GET ?userId=...
	mux.HandleFunc("/activate", s.activate)  // POST
	return mux
}

// placeBet valida o payload e delega ao engine; a serialização por
// usuário acontece na fronteira do ledger.
func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.StreamID == "" || req.BetType == "" || req.StakeCents <= 0 || req.WindowSeconds <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	result, err := s.eng.PlaceBet(r.Context(), engine.PlaceBetCmd{
		UserID:     req.UserID,
		StreamID:   req.StreamID,
		WindowID:   req.WindowID,
		BetType:    req.BetType,
		StakeCents: req.StakeCents,
		Prediction: req.Prediction,
		Window:     time.Duration(req.WindowSeconds) * time.Second,
	})
	if err != nil {
		metrics.BetsRejected.WithLabelValues(rejectReason(err)).Inc()
		s.writeEngineError(w, err)
		return
	}
	metrics.BetsPlaced.Inc()

	if s.bets != nil {
		if err := s.bets.InsertBet(r.Context(), result.BetID, req.UserID, req.StreamID,
			req.WindowID, req.BetType, req.StakeCents, result.OddValue, req.WindowSeconds); err != nil {
			s.log.Warn("arquivo da aposta falhou", zap.String("betId", result.BetID), zap.Error(err))
		}
	}

	writeJSON(w, dto.PlaceBetResponse{
		BetID:          result.BetID,
		Status:         string(resolver.StatePending),
		OddValue:       result.OddValue,
		HeldCents:      result.Balance.HeldCents,
		AvailableCents: result.Balance.BettingCents,
	})
}

func (s *Server) getBetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Path[len("/bets/"):]
	if id == "" {
		http.Error(w, "betId required", http.StatusBadRequest)
		return
	}
	st, ok := s.res.Status(id)
	if !ok {
		s.archivedBetStatus(w, r, id)
		return
	}
	writeJSON(w, dto.BetStatusResponse{BetID: id, Status: string(st.State), PayoutCents: st.PayoutCents})
}

// archivedBetStatus resolve o status de apostas antigas pelo arquivo,
// depois que o resolver já descartou o estado em memória.
func (s *Server) archivedBetStatus(w http.ResponseWriter, r *http.Request, id string) {
	if s.bets == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	status, payout, err := s.bets.BetStatus(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("consulta ao arquivo de apostas falhou", zap.String("betId", id), zap.Error(err))
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.BetStatusResponse{BetID: id, Status: status, PayoutCents: payout})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	snap, err := s.led.Snapshot(userID)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, dto.BalanceResponse{
		UserID:         snap.UserID,
		AvailableCents: snap.BettingCents,
		HeldCents:      snap.HeldCents,
		ReserveCents:   snap.ReserveCents,
		DepositedCents: snap.DepositedCents,
		WonCents:       snap.WonCents,
		LostCents:      snap.LostCents,
		BetCount:       snap.BetCount,
		Frozen:         snap.Frozen,
	})
}

// activate processa o depósito de ativação vindo do colaborador de
// billing. ReserveCents ausente aplica a fração configurada.
func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.DepositCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	reserve := req.ReserveCents
	if reserve == 0 {
		reserve = int64(float64(req.DepositCents) * s.reserveFraction)
	}
	snap, err := s.led.Activate(req.UserID, req.DepositCents, reserve)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, dto.ActivateResponse{
		UserID:         req.UserID,
		StreamID:       req.StreamID,
		AvailableCents: snap.BettingCents,
		ReserveCents:   snap.ReserveCents,
	})
}

// writeEngineError mapeia a taxonomia de erros para status HTTP:
// validação 400, rate limit 429, fundos 409, conta congelada 423.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidStake),
		errors.Is(err, engine.ErrInvalidWindow),
		errors.Is(err, engine.ErrInvalidPrediction),
		errors.Is(err, engine.ErrUnknownBetType),
		errors.Is(err, ledger.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrUnknownAccount):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrAccountFrozen):
		http.Error(w, err.Error(), http.StatusLocked)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// rejectReason rotula o motivo da rejeição para a métrica.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidStake):
		return "invalid_stake"
	case errors.Is(err, engine.ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, engine.ErrInvalidPrediction):
		return "invalid_prediction"
	case errors.Is(err, engine.ErrUnknownBetType):
		return "unknown_type"
	case errors.Is(err, engine.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrAccountFrozen):
		return "frozen"
	default:
		return "other"
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
