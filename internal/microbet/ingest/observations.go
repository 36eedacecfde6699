package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/consensus"
	"github.com/radieske/microbet-engine-poc/internal/resolver"
	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

// ObservationProcessor consome o tópico de observações, alimenta o
// ConsensusValidator e entrega resultados aceitos ao resolver.
// Callbacks de métricas por etapa, no mesmo padrão dos workers.
type ObservationProcessor struct {
	Log       *zap.Logger
	Reader    *kafka.Reader
	Consensus *consensus.Validator
	Resolver  *resolver.Resolver
	DLQ       *kafka.Writer // opcional: mensagens inválidas

	OnConsumed func()
	OnOutcome  func(status string)
	OnError    func(stage string)
}

// Run roda o loop de consumo até o contexto encerrar. Erros de leitura
// não derrubam o worker: backoff curto e segue. O timeout da janela
// degrada para void, nunca prende a aposta.
func (p *ObservationProcessor) Run(ctx context.Context) error {
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

		var ev events.ObservationReported
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid observation", zap.Error(err))
			if p.OnError != nil {
				p.OnError("decode")
			}
			if p.DLQ != nil {
				_ = p.DLQ.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value})
			}
			continue
		}

		at := time.UnixMilli(ev.TsUnixMs)
		if ev.TsUnixMs == 0 {
			at = time.Now()
		}
		out := p.Consensus.Submit(consensus.Observation{
			StreamID:   ev.StreamID,
			WindowID:   ev.WindowID,
			ObserverID: ev.ObserverID,
			At:         at,
			Value:      ev.Value,
		})
		if p.OnOutcome != nil {
			p.OnOutcome(out.Status.String())
		}

		if out.Status == consensus.StatusNoQuorum {
			continue
		}
		p.Resolver.Deliver(ev.StreamID, ev.WindowID, out)
		if out.Status == consensus.StatusAccepted {
			p.Consensus.Resolve(ev.StreamID, ev.WindowID)
		}
	}
}
