package resolver

import (
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/consensus"
	"github.com/radieske/microbet-engine-poc/internal/ledger"
	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

// Estados de uma aposta. Transições permitidas:
// PENDING -> RESOLVING -> SETTLED_WON | SETTLED_LOST | VOIDED.
// Falha de release no ledger move para FROZEN (reconciliação manual).
// Estados terminais são imutáveis; exatamente uma transição terminal
// por aposta.
type State string

const (
	StatePending   State = "PENDING"
	StateResolving State = "RESOLVING"
	StateWon       State = "SETTLED_WON"
	StateLost      State = "SETTLED_LOST"
	StateVoided    State = "VOIDED"
	StateFrozen    State = "FROZEN"
)

// defaultRetention mantém apostas liquidadas consultáveis em memória;
// depois do descarte a consulta de status cai no arquivo Postgres.
const defaultRetention = 10 * time.Minute

// Bet é uma aposta admitida pelo engine. Campos imutáveis após a
// criação; estado mutado somente pelo resolver sob bet.mu.
type Bet struct {
	ID         string
	UserID     string
	StreamID   string
	WindowID   string
	Kind       string
	StakeCents int64
	OddValue   float64
	Prediction events.Prediction
	PlacedAt   time.Time
	Window     time.Duration

	mu          sync.Mutex
	state       State
	hold        *ledger.Hold
	timer       *time.Timer
	payoutCents int64
	settledAt   time.Time
}

// NewBet cria a aposta em PENDING com o hold já tomado.
func NewBet(id, userID, streamID, windowID, kind string, stake int64, odd float64,
	pred events.Prediction, placedAt time.Time, window time.Duration, hold *ledger.Hold) *Bet {
	return &Bet{
		ID:         id,
		UserID:     userID,
		StreamID:   streamID,
		WindowID:   windowID,
		Kind:       kind,
		StakeCents: stake,
		OddValue:   odd,
		Prediction: pred,
		PlacedAt:   placedAt,
		Window:     window,
		state:      StatePending,
		hold:       hold,
	}
}

// Status é a visão externa de uma aposta.
type Status struct {
	BetID       string    `json:"bet_id"`
	State       State     `json:"state"`
	PayoutCents int64     `json:"payout_cents"`
	SettledAt   time.Time `json:"settled_at,omitempty"`
}

// Resolver arma um timer cancelável por aposta e aplica o resultado de
// consenso às apostas pendentes da janela. A corrida entre expiração e
// liquidação é resolvida por checagem de estado dentro de bet.mu, na
// mesma região atômica do release no ledger.
type Resolver struct {
	log *zap.Logger
	led *ledger.Ledger

	mu       sync.RWMutex
	bets     map[string]*Bet
	byWindow map[string]map[string]*Bet // streamId:windowId -> betId -> bet
	lastQty  map[string]float64         // streamId -> última quantidade aceita

	// OnSettled é chamado após cada transição terminal (publicação
	// Kafka, broadcast, métricas). Opcional.
	OnSettled func(events.BetSettled)

	retention time.Duration
	now       func() time.Time
}

func New(log *zap.Logger, led *ledger.Ledger) *Resolver {
	return &Resolver{
		log:       log,
		led:       led,
		bets:      make(map[string]*Bet),
		byWindow:  make(map[string]map[string]*Bet),
		lastQty:   make(map[string]float64),
		retention: defaultRetention,
		now:       time.Now,
	}
}

// SetRetention ajusta por quanto tempo apostas liquidadas permanecem
// consultáveis em memória antes do descarte.
func (r *Resolver) SetRetention(d time.Duration) { r.retention = d }

func windowKey(streamID, windowID string) string { return streamID + ":" + windowID }

// Register indexa a aposta e arma o timer de expiração da janela.
func (r *Resolver) Register(b *Bet) {
	wk := windowKey(b.StreamID, b.WindowID)

	r.mu.Lock()
	r.bets[b.ID] = b
	if _, ok := r.byWindow[wk]; !ok {
		r.byWindow[wk] = make(map[string]*Bet)
	}
	r.byWindow[wk][b.ID] = b
	r.mu.Unlock()

	b.mu.Lock()
	b.timer = time.AfterFunc(b.Window, func() { r.expire(b.ID) })
	b.mu.Unlock()
}

// Status devolve o estado atual de uma aposta.
func (r *Resolver) Status(betID string) (Status, bool) {
	r.mu.RLock()
	b, ok := r.bets[betID]
	r.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{BetID: b.ID, State: b.state, PayoutCents: b.payoutCents, SettledAt: b.settledAt}, true
}

// Deliver aplica um resultado agregado às apostas pendentes da janela.
// NoQuorum não decide nada; Conflicting também não. Ambos deixam a
// aposta cair no caminho de void na expiração (fundos do usuário acima
// de captura de margem).
func (r *Resolver) Deliver(streamID, windowID string, out consensus.Outcome) {
	switch out.Status {
	case consensus.StatusNoQuorum:
		return
	case consensus.StatusConflicting:
		r.log.Warn("consenso conflitante; janela segue para expiração",
			zap.String("streamId", streamID),
			zap.String("windowId", windowID),
		)
		return
	}

	if out.Value.Kind == events.KindQuantity {
		r.mu.Lock()
		r.lastQty[streamID] = out.Value.Value
		r.mu.Unlock()
	}

	r.mu.RLock()
	var pending []*Bet
	for _, b := range r.byWindow[windowKey(streamID, windowID)] {
		pending = append(pending, b)
	}
	r.mu.RUnlock()

	for _, b := range pending {
		if b.Kind != out.Value.Kind {
			continue // observação não qualifica este tipo de aposta
		}
		if matched(b, out.Value) {
			r.settle(b, StateWon, ledger.Win(payout(b)), payout(b))
		} else {
			r.settle(b, StateLost, ledger.Lose(), 0)
		}
	}
}

// expire dispara no fim da janela. Quantity resolve contra a última
// quantidade conhecida do stream; os demais tipos anulam devolvendo a
// stake. Se a aposta já liquidou, a checagem de estado torna o disparo
// um no-op.
func (r *Resolver) expire(betID string) {
	r.mu.RLock()
	b, ok := r.bets[betID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if b.Kind == events.KindQuantity {
		r.mu.RLock()
		qty, known := r.lastQty[b.StreamID]
		r.mu.RUnlock()
		if known {
			actual := events.ObservedValue{Kind: events.KindQuantity, Value: qty}
			if matched(b, actual) {
				r.settle(b, StateWon, ledger.Win(payout(b)), payout(b))
			} else {
				r.settle(b, StateLost, ledger.Lose(), 0)
			}
			return
		}
	}

	r.settle(b, StateVoided, ledger.Void(), b.StakeCents)
}

// Void anula uma aposta pendente devolvendo a stake. Sempre disponível
// como desfecho terminal de primeira classe.
func (r *Resolver) Void(betID string) bool {
	r.mu.RLock()
	b, ok := r.bets[betID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.settle(b, StateVoided, ledger.Void(), b.StakeCents)
}

// settle executa a única transição terminal permitida. Checagem de
// estado, release no ledger e mudança de estado ficam na mesma região
// atômica (bet.mu); replays do mesmo resultado não liquidam duas vezes.
func (r *Resolver) settle(b *Bet, terminal State, out ledger.Outcome, payoutCents int64) bool {
	b.mu.Lock()
	if b.state != StatePending {
		b.mu.Unlock()
		r.log.Warn("liquidação repetida ignorada",
			zap.String("betId", b.ID),
			zap.String("state", string(b.state)),
		)
		return false
	}
	b.state = StateResolving
	if b.timer != nil {
		b.timer.Stop()
	}

	if _, err := r.led.Release(b.hold, out); err != nil && !errors.Is(err, ledger.ErrUnknownHold) {
		// falha de integridade: a conta já foi congelada pelo ledger.
		// A aposta estaciona em FROZEN aguardando reconciliação manual
		// (ledger-replay); nenhum evento de liquidação é emitido.
		b.state = StateFrozen
		b.mu.Unlock()
		r.log.Error("release falhou na liquidação; aposta congelada",
			zap.String("betId", b.ID),
			zap.Error(err),
		)
		return false
	}

	b.state = terminal
	b.payoutCents = payoutCents
	b.settledAt = r.now()
	b.mu.Unlock()

	r.mu.Lock()
	if m, ok := r.byWindow[windowKey(b.StreamID, b.WindowID)]; ok {
		delete(m, b.ID)
		if len(m) == 0 {
			delete(r.byWindow, windowKey(b.StreamID, b.WindowID))
		}
	}
	r.mu.Unlock()

	// estado terminal fica consultável pelo período de retenção; depois
	// sai da memória e a consulta de status passa a atender pelo arquivo
	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		delete(r.bets, b.ID)
		r.mu.Unlock()
	})

	if r.OnSettled != nil {
		r.OnSettled(events.BetSettled{
			BetID:       b.ID,
			UserID:      b.UserID,
			StreamID:    b.StreamID,
			WindowID:    b.WindowID,
			BetType:     b.Kind,
			Status:      string(terminal),
			StakeCents:  b.StakeCents,
			PayoutCents: payoutCents,
			OddValue:    b.OddValue,
			TsUnixMs:    r.now().UnixMilli(),
		})
	}
	return true
}

func payout(b *Bet) int64 {
	return int64(math.Round(float64(b.StakeCents) * b.OddValue))
}

// matched avalia a predição contra o valor aceito, por tipo:
// binary exato, quantity/timing por banda de tolerância da aposta,
// pattern por subsequência ordenada da sequência observada. Em timing o
// offset reportado vale como está; zero é medida legítima (início da
// janela), nunca sentinela de ausência.
func matched(b *Bet, v events.ObservedValue) bool {
	p := b.Prediction
	switch b.Kind {
	case events.KindBinary:
		return p.WillOccur == v.Occurred
	case events.KindQuantity:
		return math.Abs(p.Value-v.Value) <= p.Tolerance
	case events.KindTiming:
		return math.Abs(p.Seconds-v.Seconds) <= p.Tolerance
	case events.KindPattern:
		return isSubsequence(p.Sequence, v.Sequence)
	}
	return false
}

// isSubsequence verifica se want aparece em got na ordem dada, não
// necessariamente contígua.
func isSubsequence(want, got []string) bool {
	if len(want) == 0 {
		return false
	}
	i := 0
	for _, g := range got {
		if g == want[i] {
			i++
			if i == len(want) {
				return true
			}
		}
	}
	return false
}
