package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/ledger"
	"github.com/radieske/microbet-engine-poc/internal/ratelimit"
	"github.com/radieske/microbet-engine-poc/internal/resolver"
	"github.com/radieske/microbet-engine-poc/internal/txlog"
	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

func newEngine(t *testing.T, bettingCents int64, limiterCap int) (*Engine, *ledger.Ledger) {
	t.Helper()
	led := ledger.New(zap.NewNop(), txlog.New())
	if bettingCents > 0 {
		_, err := led.Activate("u1", bettingCents, 0)
		require.NoError(t, err)
	}
	res := resolver.New(zap.NewNop(), led)
	lim := ratelimit.New(limiterCap, 1.0)
	return New(zap.NewNop(), DefaultConfig(), led, lim, res), led
}

func validCmd() PlaceBetCmd {
	return PlaceBetCmd{
		UserID:     "u1",
		StreamID:   "s1",
		BetType:    events.KindBinary,
		StakeCents: 1000,
		Prediction: events.Prediction{Kind: events.KindBinary, WillOccur: true},
		Window:     30 * time.Second,
	}
}

func TestPlaceBetSuccess(t *testing.T) {
	e, led := newEngine(t, 10000, 100)

	res, err := e.PlaceBet(context.Background(), validCmd())
	require.NoError(t, err)
	assert.NotEmpty(t, res.BetID)
	assert.Equal(t, 1.9, res.OddValue) // binary, janela 30s: odd base sem fator
	assert.Equal(t, int64(1000), res.Balance.HeldCents)
	assert.Equal(t, int64(9000), res.Balance.BettingCents)

	snap, _ := led.Snapshot("u1")
	assert.Equal(t, int64(1000), snap.HeldCents)
}

func TestShortWindowBoostsOdd(t *testing.T) {
	e, _ := newEngine(t, 10000, 100)

	cmd := validCmd()
	cmd.Window = 10 * time.Second
	res, err := e.PlaceBet(context.Background(), cmd)
	require.NoError(t, err)
	assert.InDelta(t, 1.9*1.2, res.OddValue, 1e-9)
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*PlaceBetCmd)
		wantErr error
	}{
		{"tipo desconhecido", func(c *PlaceBetCmd) { c.BetType = "exotic" }, ErrUnknownBetType},
		{"stake abaixo do mínimo", func(c *PlaceBetCmd) { c.StakeCents = 50 }, ErrInvalidStake},
		{"stake acima do máximo", func(c *PlaceBetCmd) { c.StakeCents = 1000_00 }, ErrInvalidStake},
		{"janela curta demais", func(c *PlaceBetCmd) { c.Window = 2 * time.Second }, ErrInvalidWindow},
		{"janela longa demais", func(c *PlaceBetCmd) { c.Window = 10 * time.Minute }, ErrInvalidWindow},
		{"predição de outro tipo", func(c *PlaceBetCmd) {
			c.Prediction = events.Prediction{Kind: events.KindQuantity, Value: 5}
		}, ErrInvalidPrediction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, led := newEngine(t, 10000, 100)
			cmd := validCmd()
			tc.mutate(&cmd)

			_, err := e.PlaceBet(context.Background(), cmd)
			assert.ErrorIs(t, err, tc.wantErr)

			// rejeição síncrona: nenhum estado mudou
			snap, _ := led.Snapshot("u1")
			assert.Equal(t, int64(0), snap.HeldCents)
			assert.Equal(t, int64(10000), snap.BettingCents)
		})
	}
}

func TestWindowRangesPerType(t *testing.T) {
	e, _ := newEngine(t, 100000, 100)

	// timing permite até 600s; binary não
	timing := validCmd()
	timing.BetType = events.KindTiming
	timing.Prediction = events.Prediction{Kind: events.KindTiming, Seconds: 10, Tolerance: 2}
	timing.Window = 600 * time.Second
	_, err := e.PlaceBet(context.Background(), timing)
	assert.NoError(t, err)

	binary := validCmd()
	binary.Window = 600 * time.Second
	_, err = e.PlaceBet(context.Background(), binary)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestRateLimitGate(t *testing.T) {
	e, led := newEngine(t, 100000, 5)

	accepted, limited := 0, 0
	for i := 0; i < 6; i++ {
		_, err := e.PlaceBet(context.Background(), validCmd())
		switch {
		case err == nil:
			accepted++
		case assert.ErrorIs(t, err, ErrRateLimited):
			limited++
		}
	}
	assert.Equal(t, 5, accepted)
	assert.Equal(t, 1, limited)

	// negação não mexe em saldo: só as 5 stakes aceitas estão em hold
	snap, _ := led.Snapshot("u1")
	assert.Equal(t, int64(5000), snap.HeldCents)
}

func TestInsufficientFundsPropagates(t *testing.T) {
	e, _ := newEngine(t, 500, 100)

	_, err := e.PlaceBet(context.Background(), validCmd())
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestUnknownUserPropagates(t *testing.T) {
	e, _ := newEngine(t, 0, 100)

	_, err := e.PlaceBet(context.Background(), validCmd())
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)
}
