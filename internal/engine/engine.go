package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/ledger"
	"github.com/radieske/microbet-engine-poc/internal/ratelimit"
	"github.com/radieske/microbet-engine-poc/internal/resolver"
	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

var (
	ErrInvalidStake      = errors.New("engine: stake out of range")
	ErrInvalidWindow     = errors.New("engine: window out of range")
	ErrInvalidPrediction = errors.New("engine: prediction does not match bet type")
	ErrUnknownBetType    = errors.New("engine: unknown bet type")
	ErrRateLimited       = errors.New("engine: rate limited")
)

// Limits define a faixa de stake e de janela permitida por tipo.
type Limits struct {
	MinStakeCents int64
	MaxStakeCents int64
	MinWindow     time.Duration
	MaxWindow     time.Duration
}

// Config do engine: faixas por tipo e tabela de odds. Tudo insumo
// externo; valores default em DefaultConfig.
type Config struct {
	Limits map[string]Limits
	Odds   OddsTable
}

// DefaultConfig aplica as faixas de janela por tipo e a tabela de odds
// padrão. Quem instancia o engine pode trocar a tabela inteira.
func DefaultConfig() Config {
	return Config{
		Limits: map[string]Limits{
			events.KindBinary:   {MinStakeCents: 100, MaxStakeCents: 100_00, MinWindow: 5 * time.Second, MaxWindow: 120 * time.Second},
			events.KindQuantity: {MinStakeCents: 100, MaxStakeCents: 100_00, MinWindow: 10 * time.Second, MaxWindow: 300 * time.Second},
			events.KindTiming:   {MinStakeCents: 100, MaxStakeCents: 50_00, MinWindow: 5 * time.Second, MaxWindow: 600 * time.Second},
			events.KindPattern:  {MinStakeCents: 100, MaxStakeCents: 50_00, MinWindow: 10 * time.Second, MaxWindow: 300 * time.Second},
		},
		Odds: OddsTable{
			Base: map[string]float64{
				events.KindBinary:   1.9,
				events.KindQuantity: 2.1,
				events.KindTiming:   2.5,
				events.KindPattern:  3.0,
			},
			ShortWindow:  30 * time.Second,
			MediumWindow: 120 * time.Second,
			ShortFactor:  1.2,
			LongFactor:   0.9,
		},
	}
}

// PlaceBetCmd é o pedido de aposta já desserializado.
type PlaceBetCmd struct {
	UserID     string
	StreamID   string
	WindowID   string
	BetType    string
	StakeCents int64
	Prediction events.Prediction
	Window     time.Duration
}

// PlaceBetResult devolve id, odd aceita e o snapshot pós-hold.
type PlaceBetResult struct {
	BetID    string
	OddValue float64
	Balance  ledger.Snapshot
}

// Engine admite apostas: valida, passa no rate limiter, toma o hold e
// registra no resolver. Não coloca lock próprio: a serialização por
// usuário acontece na fronteira do ledger.
type Engine struct {
	log     *zap.Logger
	cfg     Config
	led     *ledger.Ledger
	limiter *ratelimit.Limiter
	res     *resolver.Resolver
}

func New(log *zap.Logger, cfg Config, led *ledger.Ledger, limiter *ratelimit.Limiter, res *resolver.Resolver) *Engine {
	return &Engine{log: log, cfg: cfg, led: led, limiter: limiter, res: res}
}

// PlaceBet valida e admite uma aposta. Ordem: validação síncrona (sem
// mudança de estado), gate de rate limit, hold no ledger, registro no
// resolver. Falha no registro devolve a stake via void do hold.
func (e *Engine) PlaceBet(ctx context.Context, cmd PlaceBetCmd) (PlaceBetResult, error) {
	lim, ok := e.cfg.Limits[cmd.BetType]
	if !ok {
		return PlaceBetResult{}, ErrUnknownBetType
	}
	if cmd.StakeCents < lim.MinStakeCents || cmd.StakeCents > lim.MaxStakeCents {
		return PlaceBetResult{}, ErrInvalidStake
	}
	if cmd.Window < lim.MinWindow || cmd.Window > lim.MaxWindow {
		return PlaceBetResult{}, ErrInvalidWindow
	}
	if cmd.Prediction.Kind != cmd.BetType {
		return PlaceBetResult{}, ErrInvalidPrediction
	}

	if !e.limiter.TryConsume(cmd.UserID) {
		return PlaceBetResult{}, ErrRateLimited
	}

	betID := uuid.NewString()
	hold, err := e.led.Hold(cmd.UserID, cmd.StakeCents, betID)
	if err != nil {
		return PlaceBetResult{}, err
	}

	odd := e.cfg.Odds.Odd(cmd.BetType, cmd.Window)
	windowID := cmd.WindowID
	if windowID == "" {
		windowID = betID
	}

	bet := resolver.NewBet(betID, cmd.UserID, cmd.StreamID, windowID, cmd.BetType,
		cmd.StakeCents, odd, cmd.Prediction, time.Now(), cmd.Window, hold)
	e.res.Register(bet)

	snap, err := e.led.Snapshot(cmd.UserID)
	if err != nil {
		return PlaceBetResult{}, err
	}

	e.log.Info("aposta admitida",
		zap.String("betId", betID),
		zap.String("userId", cmd.UserID),
		zap.String("streamId", cmd.StreamID),
		zap.String("betType", cmd.BetType),
		zap.Int64("stakeCents", cmd.StakeCents),
		zap.Float64("odd", odd),
		zap.Duration("window", cmd.Window),
	)

	return PlaceBetResult{BetID: betID, OddValue: odd, Balance: snap}, nil
}
