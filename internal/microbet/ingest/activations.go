package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/ledger"
	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

// ActivationProcessor consome ativações de stream do colaborador de
// billing e inicializa/acumula o saldo do usuário no ledger.
type ActivationProcessor struct {
	Log    *zap.Logger
	Reader *kafka.Reader
	Ledger *ledger.Ledger

	// ReserveFraction aplicada quando o evento não traz reserva explícita.
	ReserveFraction float64

	OnConsumed func()
	OnError    func(stage string)
}

func (p *ActivationProcessor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.StreamActivated
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid activation", zap.Error(err))
			if p.OnError != nil {
				p.OnError("decode")
			}
			continue
		}

		reserve := ev.ReserveCents
		if reserve == 0 {
			reserve = int64(float64(ev.DepositCents) * p.ReserveFraction)
		}
		if _, err := p.Ledger.Activate(ev.UserID, ev.DepositCents, reserve); err != nil {
			p.Log.Error("activation failed",
				zap.String("userId", ev.UserID),
				zap.String("streamId", ev.StreamID),
				zap.Error(err),
			)
			if p.OnError != nil {
				p.OnError("activate")
			}
			continue
		}
		p.Log.Info("stream ativada",
			zap.String("userId", ev.UserID),
			zap.String("streamId", ev.StreamID),
			zap.Int64("depositCents", ev.DepositCents),
			zap.Int64("reserveCents", reserve),
		)
	}
}
