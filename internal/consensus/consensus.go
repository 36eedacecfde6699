package consensus

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

// Status do resultado agregado de uma janela.
type Status int

const (
	StatusNoQuorum Status = iota
	StatusAccepted
	StatusConflicting
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "ACCEPTED"
	case StatusConflicting:
		return "CONFLICTING"
	default:
		return "NO_QUORUM"
	}
}

// Outcome é o resultado da agregação. Value só é válido com
// StatusAccepted. At é o timestamp da observação mais antiga do cluster
// vencedor (momento em que o evento foi visto primeiro).
type Outcome struct {
	Status Status
	Value  events.ObservedValue
	Votes  int
	At     time.Time
}

// Observation é o relato individual de um observador.
type Observation struct {
	StreamID   string
	WindowID   string
	ObserverID string
	At         time.Time
	Value      events.ObservedValue
}

// window serializa escritas de uma (streamId, windowId); janelas
// distintas agregam em paralelo.
type window struct {
	mu        sync.Mutex
	obs       map[string]Observation // observerID -> última observação
	updatedAt time.Time              // última escrita; insumo do Sweep
}

// Validator agrega observações independentes até atingir quórum.
// Observador repetido sobrescreve o próprio voto (last-write-wins),
// então retry ou observador comprometido não infla a contagem.
type Validator struct {
	log     *zap.Logger
	quorum  int
	epsilon float64 // tolerância para valores numéricos

	mu      sync.Mutex
	windows map[string]*window
}

// New cria o validador. Quórum efetivo nunca fica abaixo de 2.
func New(log *zap.Logger, quorum int, epsilon float64) *Validator {
	if quorum < 2 {
		quorum = 2
	}
	return &Validator{
		log:     log,
		quorum:  quorum,
		epsilon: epsilon,
		windows: make(map[string]*window),
	}
}

func key(streamID, windowID string) string { return streamID + ":" + windowID }

// Submit registra uma observação e devolve o estado agregado da janela.
// StatusAccepted indica que um cluster de valores compatíveis atingiu o
// quórum; StatusConflicting, que dois valores incompatíveis atingiram.
func (v *Validator) Submit(o Observation) Outcome {
	w := v.getOrCreate(key(o.StreamID, o.WindowID))

	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.obs[o.ObserverID]; ok {
		v.log.Debug("observador sobrescreveu o próprio voto",
			zap.String("streamId", o.StreamID),
			zap.String("windowId", o.WindowID),
			zap.String("observerId", o.ObserverID),
			zap.Time("previous", prev.At),
		)
	}
	w.obs[o.ObserverID] = o
	w.updatedAt = time.Now()

	return v.tally(w)
}

// Resolve descarta o estado da janela após a liquidação. As observações
// continuam auditáveis só pelo TransactionLog/arquivo.
func (v *Validator) Resolve(streamID, windowID string) {
	v.mu.Lock()
	delete(v.windows, key(streamID, windowID))
	v.mu.Unlock()
}

// Sweep descarta janelas sem escrita há mais de maxAge. Janela que nunca
// forma quórum não passa por Resolve; sem o descarte periódico ela
// ficaria residente para sempre. Devolve quantas foram removidas.
func (v *Validator) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	v.mu.Lock()
	defer v.mu.Unlock()
	removed := 0
	for k, w := range v.windows {
		w.mu.Lock()
		stale := w.updatedAt.Before(cutoff)
		w.mu.Unlock()
		if stale {
			delete(v.windows, k)
			removed++
		}
	}
	return removed
}

func (v *Validator) getOrCreate(k string) *window {
	v.mu.Lock()
	defer v.mu.Unlock()
	w, ok := v.windows[k]
	if !ok {
		w = &window{obs: make(map[string]Observation)}
		v.windows[k] = w
	}
	return w
}

// tally agrupa observações por compatibilidade de valor e procura
// clusters com quórum. Chamado com w.mu em posse.
func (v *Validator) tally(w *window) Outcome {
	type cluster struct {
		rep   Observation // representante (observação mais antiga)
		votes int
	}
	var clusters []*cluster

	for _, o := range w.obs {
		placed := false
		for _, c := range clusters {
			if v.agree(c.rep.Value, o.Value) {
				c.votes++
				if o.At.Before(c.rep.At) {
					c.rep = o
				}
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{rep: o, votes: 1})
		}
	}

	var winner *cluster
	reached := 0
	for _, c := range clusters {
		if c.votes >= v.quorum {
			reached++
			if winner == nil || c.votes > winner.votes {
				winner = c
			}
		}
	}

	switch {
	case reached > 1:
		// empate entre valores incompatíveis: ninguém decide, o
		// resolver cai no caminho de void/expiração
		return Outcome{Status: StatusConflicting}
	case winner != nil:
		return Outcome{
			Status: StatusAccepted,
			Value:  winner.rep.Value,
			Votes:  winner.votes,
			At:     winner.rep.At,
		}
	default:
		return Outcome{Status: StatusNoQuorum}
	}
}

// agree compara dois valores observados: igualdade exata para discretos,
// epsilon para numéricos.
func (v *Validator) agree(a, b events.ObservedValue) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case events.KindBinary:
		return a.Occurred == b.Occurred
	case events.KindQuantity:
		return math.Abs(a.Value-b.Value) <= v.epsilon
	case events.KindTiming:
		return math.Abs(a.Seconds-b.Seconds) <= v.epsilon
	case events.KindPattern:
		if len(a.Sequence) != len(b.Sequence) {
			return false
		}
		for i := range a.Sequence {
			if a.Sequence[i] != b.Sequence[i] {
				return false
			}
		}
		return true
	}
	return false
}
