package txlog

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Kind identifica a operação registrada. O replay reconstrói o saldo
// aplicando cada kind na ordem de sequência.
type Kind string

const (
	KindDeposit Kind = "DEPOSIT" // crédito de depósito no saldo apostável
	KindReserve Kind = "RESERVE" // move saldo apostável para a reserva de ativação
	KindHold    Kind = "HOLD"    // bloqueia stake de uma aposta aberta
	KindVoid    Kind = "VOID"    // devolve stake de aposta anulada
	KindDebit   Kind = "DEBIT"   // stake consumida na liquidação (perda ou base da vitória)
	KindCredit  Kind = "CREDIT"  // payout creditado na vitória
)

// Record é uma entrada imutável do log. Seq é monotônico por usuário.
type Record struct {
	Seq          uint64
	UserID       string
	Kind         Kind
	AmountCents  int64
	RefID        string // hold/bet que originou a mutação
	BettingAfter int64
	HeldAfter    int64
	ReserveAfter int64
	At           time.Time
}

// Balance é o resultado do replay de um usuário.
type Balance struct {
	BettingCents   int64
	HeldCents      int64
	ReserveCents   int64
	DepositedCents int64
	WonCents       int64
	LostCents      int64
}

// Sink recebe cada record após o append em memória. Erro do sink é
// tratado como falha de integridade (propagado ao chamador).
type Sink interface {
	Persist(Record) error
}

var (
	ErrUnknownUser = errors.New("txlog: unknown user")
	ErrSinkFailed  = errors.New("txlog: sink write failed")
)

// Log mantém as sequências append-only por usuário. Ordenação garantida
// por usuário, não global.
type Log struct {
	mu      sync.RWMutex
	records map[string][]Record
	sink    Sink
}

func New() *Log {
	return &Log{records: make(map[string][]Record)}
}

// SetSink define o destino durável dos records (arquivo Postgres).
func (l *Log) SetSink(s Sink) { l.sink = s }

// Append grava um record atribuindo o próximo Seq do usuário. Falha do
// sink é fatal para o ledger do usuário: o record em memória permanece,
// mas o erro deve congelar a conta no chamador.
func (l *Log) Append(r Record) error {
	l.mu.Lock()
	r.Seq = uint64(len(l.records[r.UserID]) + 1)
	if r.At.IsZero() {
		r.At = time.Now()
	}
	l.records[r.UserID] = append(l.records[r.UserID], r)
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Persist(r); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkFailed, err)
		}
	}
	return nil
}

// Records devolve uma cópia da sequência de um usuário.
func (l *Log) Records(userID string) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.records[userID]
	out := make([]Record, len(src))
	copy(out, src)
	return out
}

// ReplayBalance recomputa o saldo de um usuário a partir da sequência
// completa. Usado na reconciliação: deve bater com o ledger vivo.
func (l *Log) ReplayBalance(userID string) (Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recs, ok := l.records[userID]
	if !ok {
		return Balance{}, ErrUnknownUser
	}
	return Reduce(recs), nil
}

// Reduce aplica a sequência de records sobre um saldo zerado.
func Reduce(recs []Record) Balance {
	var b Balance
	for _, r := range recs {
		switch r.Kind {
		case KindDeposit:
			b.BettingCents += r.AmountCents
			b.DepositedCents += r.AmountCents
		case KindReserve:
			b.BettingCents -= r.AmountCents
			b.ReserveCents += r.AmountCents
		case KindHold:
			b.BettingCents -= r.AmountCents
			b.HeldCents += r.AmountCents
		case KindVoid:
			b.HeldCents -= r.AmountCents
			b.BettingCents += r.AmountCents
		case KindDebit:
			b.HeldCents -= r.AmountCents
			b.LostCents += r.AmountCents
		case KindCredit:
			b.BettingCents += r.AmountCents
			b.WonCents += r.AmountCents
		}
	}
	return b
}
