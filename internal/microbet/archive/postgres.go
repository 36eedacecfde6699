package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/radieske/microbet-engine-poc/internal/txlog"
)

// Postgres arquiva os records do TransactionLog e as apostas. É o
// destino durável usado pela reconciliação offline (ledger-replay);
// o caminho quente fica em memória.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Persist implementa txlog.Sink. Erro aqui é tratado como falha de
// integridade pelo ledger (conta congelada), nunca descartado.
func (p *Postgres) Persist(r txlog.Record) error {
	_, err := p.db.Exec(`
		INSERT INTO ledger_records
			(user_id, seq, kind, amount_cents, ref_id, betting_after, held_after, reserve_after, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (user_id, seq) DO NOTHING`,
		r.UserID, r.Seq, string(r.Kind), r.AmountCents, r.RefID,
		r.BettingAfter, r.HeldAfter, r.ReserveAfter, r.At,
	)
	if err != nil {
		return fmt.Errorf("archive persist: %w", err)
	}
	return nil
}

// InsertBet arquiva uma aposta admitida.
func (p *Postgres) InsertBet(ctx context.Context, betID, userID, streamID, windowID, betType string,
	stakeCents int64, odd float64, windowSeconds int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bets (id, user_id, stream_id, window_id, bet_type, stake_cents, odd_value, window_seconds, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'PENDING')`,
		betID, userID, streamID, windowID, betType, stakeCents, odd, windowSeconds,
	)
	return err
}

// BetStatus devolve o status arquivado de uma aposta. sql.ErrNoRows
// quando a aposta não existe.
func (p *Postgres) BetStatus(ctx context.Context, betID string) (status string, payoutCents int64, err error) {
	err = p.db.QueryRowContext(ctx, `
		SELECT status, COALESCE(payout_cents, 0) FROM bets WHERE id=$1`, betID).
		Scan(&status, &payoutCents)
	return
}

// MarkSettled atualiza o status terminal da aposta arquivada.
func (p *Postgres) MarkSettled(ctx context.Context, betID, status string, payoutCents int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE bets SET status=$1, payout_cents=$2, settled_at=NOW() WHERE id=$3`,
		status, payoutCents, betID,
	)
	return err
}

// Users lista os usuários com records arquivados.
func (p *Postgres) Users(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM ledger_records ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ReplayBalance recomputa o saldo de um usuário a partir da sequência
// arquivada, na ordem de seq. Mesmas transições do replay em memória.
func (p *Postgres) ReplayBalance(ctx context.Context, userID string) (txlog.Balance, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT seq, kind, amount_cents, ref_id, betting_after, held_after, reserve_after, created_at
		FROM ledger_records WHERE user_id=$1 ORDER BY seq`, userID)
	if err != nil {
		return txlog.Balance{}, err
	}
	defer rows.Close()

	var recs []txlog.Record
	for rows.Next() {
		r := txlog.Record{UserID: userID}
		var kind string
		if err := rows.Scan(&r.Seq, &kind, &r.AmountCents, &r.RefID,
			&r.BettingAfter, &r.HeldAfter, &r.ReserveAfter, &r.At); err != nil {
			return txlog.Balance{}, err
		}
		r.Kind = txlog.Kind(kind)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return txlog.Balance{}, err
	}
	if len(recs) == 0 {
		return txlog.Balance{}, sql.ErrNoRows
	}
	return txlog.Reduce(recs), nil
}

// LastSnapshot devolve o snapshot gravado no último record do usuário,
// usado como referência de divergência na reconciliação.
func (p *Postgres) LastSnapshot(ctx context.Context, userID string) (betting, held, reserve int64, err error) {
	err = p.db.QueryRowContext(ctx, `
		SELECT betting_after, held_after, reserve_after
		FROM ledger_records WHERE user_id=$1 ORDER BY seq DESC LIMIT 1`, userID).
		Scan(&betting, &held, &reserve)
	return
}
