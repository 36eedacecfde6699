package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/txlog"
)

func newLedger(t *testing.T) (*Ledger, *txlog.Log) {
	t.Helper()
	tx := txlog.New()
	return New(zap.NewNop(), tx), tx
}

func TestActivateSplitsReserve(t *testing.T) {
	l, _ := newLedger(t)

	snap, err := l.Activate("u1", 10000, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), snap.BettingCents)
	assert.Equal(t, int64(2000), snap.ReserveCents)
	assert.Equal(t, int64(10000), snap.DepositedCents)
}

func TestActivateRejectsInvalidAmounts(t *testing.T) {
	l, _ := newLedger(t)

	_, err := l.Activate("u1", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = l.Activate("u1", 100, 200)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestHoldInsufficientFunds(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Activate("u1", 1000, 0)
	require.NoError(t, err)

	_, err = l.Hold("u1", 2000, "bet-1")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// sem mudança de estado
	snap, _ := l.Snapshot("u1")
	assert.Equal(t, int64(1000), snap.BettingCents)
	assert.Equal(t, int64(0), snap.HeldCents)
}

func TestHoldUnknownAccount(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Hold("ghost", 100, "bet-1")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestReleaseOutcomes(t *testing.T) {
	cases := []struct {
		name        string
		outcome     Outcome
		wantBetting int64
		wantHeld    int64
	}{
		{"win credita payout", Win(1800), 10800, 0},
		{"lose consome stake", Lose(), 9000, 0},
		{"void devolve stake", Void(), 10000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newLedger(t)
			_, err := l.Activate("u1", 10000, 0)
			require.NoError(t, err)

			h, err := l.Hold("u1", 1000, "bet-1")
			require.NoError(t, err)

			snap, err := l.Release(h, tc.outcome)
			require.NoError(t, err)
			assert.Equal(t, tc.wantBetting, snap.BettingCents)
			assert.Equal(t, tc.wantHeld, snap.HeldCents)
		})
	}
}

func TestDoubleReleaseIsRecoverableNoOp(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Activate("u1", 10000, 0)
	require.NoError(t, err)

	h, err := l.Hold("u1", 1000, "bet-1")
	require.NoError(t, err)

	_, err = l.Release(h, Void())
	require.NoError(t, err)

	// retry do resolver: não pode liquidar duas vezes
	_, err = l.Release(h, Win(1800))
	assert.ErrorIs(t, err, ErrUnknownHold)

	snap, _ := l.Snapshot("u1")
	assert.Equal(t, int64(10000), snap.BettingCents)
}

func TestFrozenAccountRejectsHolds(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Activate("u1", 10000, 0)
	require.NoError(t, err)

	h, err := l.Hold("u1", 1000, "bet-1")
	require.NoError(t, err)

	require.NoError(t, l.Freeze("u1"))

	_, err = l.Hold("u1", 100, "bet-2")
	assert.ErrorIs(t, err, ErrAccountFrozen)

	// release de hold aberto continua permitido para não prender stake
	_, err = l.Release(h, Void())
	assert.NoError(t, err)
}

func TestConservationUnderConcurrency(t *testing.T) {
	l, tx := newLedger(t)
	_, err := l.Activate("u1", 100000, 10000)
	require.NoError(t, err)

	const workers = 8
	const rounds = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				h, err := l.Hold("u1", 100, "bet")
				if err != nil {
					continue // fundos esgotados sob corrida é aceitável
				}
				switch i % 3 {
				case 0:
					_, _ = l.Release(h, Win(180))
				case 1:
					_, _ = l.Release(h, Lose())
				default:
					_, _ = l.Release(h, Void())
				}
			}
		}(w)
	}
	wg.Wait()

	snap, err := l.Snapshot("u1")
	require.NoError(t, err)
	assert.False(t, snap.Frozen, "auditoria não pode disparar em operação correta")
	assert.GreaterOrEqual(t, snap.BettingCents, int64(0))
	assert.Equal(t, int64(0), snap.HeldCents)
	assert.Equal(t, snap.DepositedCents-snap.LostCents+snap.WonCents,
		snap.BettingCents+snap.HeldCents+snap.ReserveCents)

	// replay equivalence: log completo recomputa o saldo vivo
	replayed, err := tx.ReplayBalance("u1")
	require.NoError(t, err)
	assert.Equal(t, snap.BettingCents, replayed.BettingCents)
	assert.Equal(t, snap.HeldCents, replayed.HeldCents)
	assert.Equal(t, snap.ReserveCents, replayed.ReserveCents)
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	l, _ := newLedger(t)

	var mu sync.Mutex
	var got []Snapshot
	l.OnChange = func(s Snapshot) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}

	_, err := l.Activate("u1", 10000, 2000)
	require.NoError(t, err)
	h, err := l.Hold("u1", 1000, "bet-1")
	require.NoError(t, err)
	_, err = l.Release(h, Lose())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, int64(7000), got[1].BettingCents)
	assert.Equal(t, int64(1000), got[1].HeldCents)
	assert.Equal(t, int64(7000), got[2].BettingCents)
	assert.Equal(t, int64(0), got[2].HeldCents)
}
