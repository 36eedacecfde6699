package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/txlog"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrUnknownAccount    = errors.New("ledger: unknown account")
	ErrUnknownHold       = errors.New("ledger: unknown hold") // recuperável: release duplicado
	ErrAccountFrozen     = errors.New("ledger: account frozen")
	ErrInvalidAmount     = errors.New("ledger: invalid amount")
)

// OutcomeKind define o desfecho de um hold.
type OutcomeKind int

const (
	OutcomeWin OutcomeKind = iota
	OutcomeLose
	OutcomeVoid
)

// Outcome descreve o release de um hold. Win carrega o payout bruto
// (stake * odd) em centavos.
type Outcome struct {
	Kind        OutcomeKind
	PayoutCents int64
}

func Win(payoutCents int64) Outcome { return Outcome{Kind: OutcomeWin, PayoutCents: payoutCents} }
func Lose() Outcome                 { return Outcome{Kind: OutcomeLose} }
func Void() Outcome                 { return Outcome{Kind: OutcomeVoid} }

// Hold referencia um bloqueio de stake específico. Devolvido por Hold e
// consumido exatamente uma vez por Release.
type Hold struct {
	ID          string
	UserID      string
	AmountCents int64
	RefID       string // bet que originou o hold
}

// Snapshot é a visão consistente do saldo de um usuário.
type Snapshot struct {
	UserID         string `json:"user_id"`
	BettingCents   int64  `json:"betting_cents"`
	HeldCents      int64  `json:"held_cents"`
	ReserveCents   int64  `json:"reserve_cents"`
	DepositedCents int64  `json:"deposited_cents"`
	WonCents       int64  `json:"won_cents"`
	LostCents      int64  `json:"lost_cents"`
	BetCount       int64  `json:"bet_count"`
	Frozen         bool   `json:"frozen"`
}

// account é mutado somente sob o próprio mutex. Nunca um lock global no
// caminho quente: contenção fica restrita ao usuário.
type account struct {
	mu       sync.Mutex
	userID   string
	betting  int64
	held     int64
	reserve  int64
	deposit  int64
	won      int64
	lost     int64
	betCount int64
	frozen   bool
	holds    map[string]int64 // holdID -> amount em aberto
}

// Ledger guarda os saldos por usuário e é o único dono das mutações.
// Cada mutação registra exatamente seus records no TransactionLog e
// roda a auditoria de conservação antes de liberar o lock da conta.
type Ledger struct {
	log *zap.Logger
	tx  *txlog.Log

	mu       sync.RWMutex
	accounts map[string]*account

	// OnChange recebe o snapshot após cada mutação (fora do lock da
	// conta). Usado para o cache Redis de saldo.
	OnChange func(Snapshot)
}

func New(log *zap.Logger, tx *txlog.Log) *Ledger {
	return &Ledger{
		log:      log,
		tx:       tx,
		accounts: make(map[string]*account),
	}
}

// Activate credita um depósito de ativação e separa a reserva. Cria a
// conta na primeira ativação; depósitos subsequentes acumulam.
func (l *Ledger) Activate(userID string, depositCents, reserveCents int64) (Snapshot, error) {
	if depositCents <= 0 || reserveCents < 0 || reserveCents > depositCents {
		return Snapshot{}, ErrInvalidAmount
	}

	acc := l.getOrCreate(userID)
	acc.mu.Lock()
	if acc.frozen {
		acc.mu.Unlock()
		return Snapshot{}, ErrAccountFrozen
	}

	acc.betting += depositCents
	acc.deposit += depositCents
	if err := l.append(acc, txlog.KindDeposit, depositCents, ""); err != nil {
		return l.freezeLocked(acc, err)
	}

	if reserveCents > 0 {
		acc.betting -= reserveCents
		acc.reserve += reserveCents
		if err := l.append(acc, txlog.KindReserve, reserveCents, ""); err != nil {
			return l.freezeLocked(acc, err)
		}
	}

	if err := l.auditLocked(acc); err != nil {
		return l.freezeLocked(acc, err)
	}
	snap := snapshotLocked(acc)
	acc.mu.Unlock()

	l.notify(snap)
	return snap, nil
}

// Hold bloqueia amount do saldo apostável. Operação serializável por
// usuário: checagem e movimentação sob o mesmo lock.
func (l *Ledger) Hold(userID string, amountCents int64, refID string) (*Hold, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	l.mu.RLock()
	acc, ok := l.accounts[userID]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAccount
	}

	acc.mu.Lock()
	if acc.frozen {
		acc.mu.Unlock()
		return nil, ErrAccountFrozen
	}
	if acc.betting < amountCents {
		acc.mu.Unlock()
		return nil, ErrInsufficientFunds
	}

	h := &Hold{
		ID:          uuid.NewString(),
		UserID:      userID,
		AmountCents: amountCents,
		RefID:       refID,
	}
	acc.betting -= amountCents
	acc.held += amountCents
	acc.betCount++
	acc.holds[h.ID] = amountCents

	if err := l.append(acc, txlog.KindHold, amountCents, refID); err != nil {
		_, ferr := l.freezeLocked(acc, err)
		return nil, ferr
	}
	if err := l.auditLocked(acc); err != nil {
		_, ferr := l.freezeLocked(acc, err)
		return nil, ferr
	}
	snap := snapshotLocked(acc)
	acc.mu.Unlock()

	l.notify(snap)
	return h, nil
}

// Release liquida um hold. Idempotente-safe: segundo release do mesmo
// hold devolve ErrUnknownHold e não mexe em saldo (tolera retries do
// resolver). Win credita o payout; Lose consome a stake; Void devolve.
func (l *Ledger) Release(h *Hold, out Outcome) (Snapshot, error) {
	if h == nil {
		return Snapshot{}, ErrUnknownHold
	}

	l.mu.RLock()
	acc, ok := l.accounts[h.UserID]
	l.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrUnknownAccount
	}

	acc.mu.Lock()
	amount, open := acc.holds[h.ID]
	if !open {
		acc.mu.Unlock()
		l.log.Warn("release de hold desconhecido ou já liquidado",
			zap.String("userId", h.UserID),
			zap.String("holdId", h.ID),
			zap.String("refId", h.RefID),
		)
		return Snapshot{}, ErrUnknownHold
	}
	delete(acc.holds, h.ID)

	var err error
	switch out.Kind {
	case OutcomeWin:
		acc.held -= amount
		acc.lost += amount
		if err = l.append(acc, txlog.KindDebit, amount, h.RefID); err == nil {
			acc.betting += out.PayoutCents
			acc.won += out.PayoutCents
			err = l.append(acc, txlog.KindCredit, out.PayoutCents, h.RefID)
		}
	case OutcomeLose:
		acc.held -= amount
		acc.lost += amount
		err = l.append(acc, txlog.KindDebit, amount, h.RefID)
	case OutcomeVoid:
		acc.held -= amount
		acc.betting += amount
		err = l.append(acc, txlog.KindVoid, amount, h.RefID)
	}
	if err != nil {
		return l.freezeLocked(acc, err)
	}

	if err := l.auditLocked(acc); err != nil {
		return l.freezeLocked(acc, err)
	}
	snap := snapshotLocked(acc)
	acc.mu.Unlock()

	l.notify(snap)
	return snap, nil
}

// Snapshot devolve a visão atual do saldo de um usuário.
func (l *Ledger) Snapshot(userID string) (Snapshot, error) {
	l.mu.RLock()
	acc, ok := l.accounts[userID]
	l.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrUnknownAccount
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return snapshotLocked(acc), nil
}

// Freeze congela a conta manualmente (operação de reconciliação).
// Novos holds passam a ser rejeitados; releases em aberto continuam
// permitidos para não prender stakes.
func (l *Ledger) Freeze(userID string) error {
	l.mu.RLock()
	acc, ok := l.accounts[userID]
	l.mu.RUnlock()
	if !ok {
		return ErrUnknownAccount
	}
	acc.mu.Lock()
	acc.frozen = true
	acc.mu.Unlock()
	l.log.Warn("conta congelada", zap.String("userId", userID))
	return nil
}

func (l *Ledger) getOrCreate(userID string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[userID]
	if !ok {
		acc = &account{userID: userID, holds: make(map[string]int64)}
		l.accounts[userID] = acc
	}
	return acc
}

// append registra o record já refletindo o estado pós-mutação.
// Chamado com acc.mu em posse.
func (l *Ledger) append(acc *account, kind txlog.Kind, amount int64, refID string) error {
	return l.tx.Append(txlog.Record{
		UserID:       acc.userID,
		Kind:         kind,
		AmountCents:  amount,
		RefID:        refID,
		BettingAfter: acc.betting,
		HeldAfter:    acc.held,
		ReserveAfter: acc.reserve,
		At:           time.Now(),
	})
}

// auditLocked verifica a lei de conservação após cada mutação:
// betting + held + reserve == deposited - lost + won, e nenhum saldo
// negativo. Violação é erro de integridade, nunca resolvida em silêncio.
func (l *Ledger) auditLocked(acc *account) error {
	if acc.betting < 0 || acc.held < 0 || acc.reserve < 0 {
		return fmt.Errorf("negative balance: betting=%d held=%d reserve=%d", acc.betting, acc.held, acc.reserve)
	}
	if acc.betting+acc.held+acc.reserve != acc.deposit-acc.lost+acc.won {
		return fmt.Errorf("conservation violated: betting=%d held=%d reserve=%d deposited=%d lost=%d won=%d",
			acc.betting, acc.held, acc.reserve, acc.deposit, acc.lost, acc.won)
	}
	return nil
}

// freezeLocked congela a conta após falha de integridade e devolve o
// erro original anotado. Libera acc.mu.
func (l *Ledger) freezeLocked(acc *account, cause error) (Snapshot, error) {
	acc.frozen = true
	snap := snapshotLocked(acc)
	acc.mu.Unlock()
	l.log.Error("integridade do ledger violada; conta congelada",
		zap.String("userId", acc.userID),
		zap.Error(cause),
	)
	return snap, fmt.Errorf("%w: %v", ErrAccountFrozen, cause)
}

func (l *Ledger) notify(snap Snapshot) {
	if l.OnChange != nil {
		l.OnChange(snap)
	}
}

func snapshotLocked(acc *account) Snapshot {
	return Snapshot{
		UserID:         acc.userID,
		BettingCents:   acc.betting,
		HeldCents:      acc.held,
		ReserveCents:   acc.reserve,
		DepositedCents: acc.deposit,
		WonCents:       acc.won,
		LostCents:      acc.lost,
		BetCount:       acc.betCount,
		Frozen:         acc.frozen,
	}
}
