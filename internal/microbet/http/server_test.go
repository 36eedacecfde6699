package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/consensus"
	"github.com/radieske/microbet-engine-poc/internal/engine"
	"github.com/radieske/microbet-engine-poc/internal/ledger"
	"github.com/radieske/microbet-engine-poc/internal/microbet/dto"
	"github.com/radieske/microbet-engine-poc/internal/ratelimit"
	"github.com/radieske/microbet-engine-poc/internal/resolver"
	"github.com/radieske/microbet-engine-poc/internal/txlog"
	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

func newTestServer(t *testing.T, limiterCap int) (*Server, *ledger.Ledger, *resolver.Resolver) {
	t.Helper()
	led := ledger.New(zap.NewNop(), txlog.New())
	res := resolver.New(zap.NewNop(), led)
	eng := engine.New(zap.NewNop(), engine.DefaultConfig(), led, ratelimit.New(limiterCap, 1.0), res)
	return NewServer(zap.NewNop(), eng, led, res, nil, 0.2), led, res
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func consensusAccepted(v events.ObservedValue) consensus.Outcome {
	return consensus.Outcome{Status: consensus.StatusAccepted, Value: v, Votes: 2, At: time.Now()}
}

func betRequest() dto.PlaceBetRequest {
	return dto.PlaceBetRequest{
		UserID:        "u1",
		StreamID:      "s1",
		BetType:       events.KindBinary,
		StakeCents:    1000,
		Prediction:    events.Prediction{Kind: events.KindBinary, WillOccur: true},
		WindowSeconds: 30,
	}
}

func TestActivateThenPlaceBet(t *testing.T) {
	s, _, _ := newTestServer(t, 100)
	h := s.Router()

	rec := doJSON(t, h, http.MethodPost, "/activate", dto.ActivateRequest{
		UserID: "u1", StreamID: "s1", DepositCents: 10000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var act dto.ActivateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &act))
	assert.Equal(t, int64(8000), act.AvailableCents) // fração de reserva 0.2
	assert.Equal(t, int64(2000), act.ReserveCents)

	rec = doJSON(t, h, http.MethodPost, "/bets", betRequest())
	require.Equal(t, http.StatusOK, rec.Code)

	var placed dto.PlaceBetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))
	assert.NotEmpty(t, placed.BetID)
	assert.Equal(t, "PENDING", placed.Status)
	assert.Equal(t, 1.9, placed.OddValue)
	assert.Equal(t, int64(1000), placed.HeldCents)
	assert.Equal(t, int64(7000), placed.AvailableCents)
}

func TestActivateExplicitReserve(t *testing.T) {
	s, _, _ := newTestServer(t, 100)

	rec := doJSON(t, s.Router(), http.MethodPost, "/activate", dto.ActivateRequest{
		UserID: "u1", DepositCents: 10000, ReserveCents: 500,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var act dto.ActivateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &act))
	assert.Equal(t, int64(9500), act.AvailableCents)
	assert.Equal(t, int64(500), act.ReserveCents)
}

func TestPlaceBetErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*dto.PlaceBetRequest)
		wantCode int
	}{
		{"stake inválida", func(r *dto.PlaceBetRequest) { r.StakeCents = 50 }, http.StatusBadRequest},
		{"janela inválida", func(r *dto.PlaceBetRequest) { r.WindowSeconds = 2 }, http.StatusBadRequest},
		{"tipo desconhecido", func(r *dto.PlaceBetRequest) { r.BetType = "exotic" }, http.StatusBadRequest},
		{"usuário não ativado", func(r *dto.PlaceBetRequest) { r.UserID = "ghost" }, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, led, _ := newTestServer(t, 100)
			_, err := led.Activate("u1", 10000, 0)
			require.NoError(t, err)

			req := betRequest()
			tc.mutate(&req)
			rec := doJSON(t, s.Router(), http.MethodPost, "/bets", req)
			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestPlaceBetInsufficientFundsIs409(t *testing.T) {
	s, led, _ := newTestServer(t, 100)
	_, err := led.Activate("u1", 500, 0)
	require.NoError(t, err)

	rec := doJSON(t, s.Router(), http.MethodPost, "/bets", betRequest())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPlaceBetRateLimitedIs429(t *testing.T) {
	s, led, _ := newTestServer(t, 5)
	_, err := led.Activate("u1", 100000, 0)
	require.NoError(t, err)

	h := s.Router()
	codes := map[int]int{}
	for i := 0; i < 6; i++ {
		rec := doJSON(t, h, http.MethodPost, "/bets", betRequest())
		codes[rec.Code]++
	}
	assert.Equal(t, 5, codes[http.StatusOK])
	assert.Equal(t, 1, codes[http.StatusTooManyRequests])
}

func TestPlaceBetBadJSON(t *testing.T) {
	s, _, _ := newTestServer(t, 100)

	req := httptest.NewRequest(http.MethodPost, "/bets", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBetStatus(t *testing.T) {
	s, led, _ := newTestServer(t, 100)
	_, err := led.Activate("u1", 10000, 0)
	require.NoError(t, err)

	h := s.Router()
	rec := doJSON(t, h, http.MethodPost, "/bets", betRequest())
	require.Equal(t, http.StatusOK, rec.Code)
	var placed dto.PlaceBetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/bets/%s", placed.BetID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st dto.BetStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, placed.BetID, st.BetID)
	assert.Equal(t, "PENDING", st.Status)

	rec = doJSON(t, h, http.MethodGet, "/bets/nao-existe", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubBetStore struct {
	status map[string]string
	payout map[string]int64
}

func (s *stubBetStore) InsertBet(context.Context, string, string, string, string, string, int64, float64, int64) error {
	return nil
}

func (s *stubBetStore) BetStatus(_ context.Context, betID string) (string, int64, error) {
	st, ok := s.status[betID]
	if !ok {
		return "", 0, sql.ErrNoRows
	}
	return st, s.payout[betID], nil
}

func TestBetStatusFallsBackToArchive(t *testing.T) {
	led := ledger.New(zap.NewNop(), txlog.New())
	res := resolver.New(zap.NewNop(), led)
	eng := engine.New(zap.NewNop(), engine.DefaultConfig(), led, ratelimit.New(100, 1.0), res)
	store := &stubBetStore{
		status: map[string]string{"old-bet": "SETTLED_WON"},
		payout: map[string]int64{"old-bet": 1900},
	}
	s := NewServer(zap.NewNop(), eng, led, res, store, 0.2)

	// aposta já descartada da memória pela retenção: responde do arquivo
	rec := doJSON(t, s.Router(), http.MethodGet, "/bets/old-bet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st dto.BetStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "old-bet", st.BetID)
	assert.Equal(t, "SETTLED_WON", st.Status)
	assert.Equal(t, int64(1900), st.PayoutCents)

	// inexistente em memória e no arquivo
	rec = doJSON(t, s.Router(), http.MethodGet, "/bets/nunca-existiu", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBalance(t *testing.T) {
	s, led, _ := newTestServer(t, 100)
	_, err := led.Activate("u1", 10000, 2000)
	require.NoError(t, err)

	rec := doJSON(t, s.Router(), http.MethodGet, "/balance?userId=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal dto.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, int64(8000), bal.AvailableCents)
	assert.Equal(t, int64(2000), bal.ReserveCents)
	assert.Equal(t, int64(10000), bal.DepositedCents)

	rec = doJSON(t, s.Router(), http.MethodGet, "/balance?userId=ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s.Router(), http.MethodGet, "/balance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettlementVisibleViaAPI(t *testing.T) {
	s, led, res := newTestServer(t, 100)
	_, err := led.Activate("u1", 10000, 0)
	require.NoError(t, err)

	h := s.Router()
	req := betRequest()
	req.WindowID = "w1"
	rec := doJSON(t, h, http.MethodPost, "/bets", req)
	require.Equal(t, http.StatusOK, rec.Code)
	var placed dto.PlaceBetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	res.Deliver("s1", "w1", consensusAccepted(events.ObservedValue{Kind: events.KindBinary, Occurred: true}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, h, http.MethodGet, "/bets/"+placed.BetID, nil)
		var st dto.BetStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		if st.Status == "SETTLED_WON" {
			assert.Equal(t, 1.9, placed.OddValue)
			assert.Equal(t, int64(1900), st.PayoutCents)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("aposta não liquidou via API")
}
