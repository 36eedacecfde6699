package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/shared/config"
	skafka "github.com/radieske/microbet-engine-poc/internal/shared/kafka"
	"github.com/radieske/microbet-engine-poc/internal/shared/logger"
	smetrics "github.com/radieske/microbet-engine-poc/internal/shared/metrics"
	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

// Catálogo fixo de streams simuladas
var streamCatalog = []string{"STREAM_001", "STREAM_002", "STREAM_003"}

// Observadores independentes simulados (CV, consenso de usuários, manual)
var observers = []string{"cv-engine", "crowd-vote", "manual-review"}

var observationsSent = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "observer_sim_observations_sent_total",
	Help: "Observações sintéticas publicadas no Kafka",
})

// randomValue gera um valor observado aleatório por tipo.
func randomValue() events.ObservedValue {
	switch rand.Intn(4) {
	case 0:
		return events.ObservedValue{Kind: events.KindBinary, Occurred: rand.Intn(2) == 0}
	case 1:
		return events.ObservedValue{Kind: events.KindQuantity, Value: float64(rand.Intn(30))}
	case 2:
		return events.ObservedValue{Kind: events.KindTiming, Seconds: rand.Float64() * 60}
	default:
		moves := []string{"jump", "sprint", "pass", "shot", "save"}
		n := 2 + rand.Intn(3)
		seq := make([]string, 0, n)
		for i := 0; i < n; i++ {
			seq = append(seq, moves[rand.Intn(len(moves))])
		}
		return events.ObservedValue{Kind: events.KindPattern, Sequence: seq}
	}
}

// jitter perturba valores numéricos para simular divergência entre
// observadores; binários e padrões divergem trocando o valor inteiro.
func jitter(v events.ObservedValue, disagree bool) events.ObservedValue {
	if !disagree {
		if v.Kind == events.KindQuantity {
			v.Value += (rand.Float64() - 0.5) * 0.4 // dentro do epsilon default
		}
		if v.Kind == events.KindTiming {
			v.Seconds += (rand.Float64() - 0.5) * 0.4
		}
		return v
	}
	switch v.Kind {
	case events.KindBinary:
		v.Occurred = !v.Occurred
	case events.KindQuantity:
		v.Value += 5 + rand.Float64()*5
	case events.KindTiming:
		v.Seconds += 10 + rand.Float64()*10
	case events.KindPattern:
		v.Sequence = append([]string{"noise"}, v.Sequence...)
	}
	return v
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prometheus.MustRegister(observationsSent)
	smetrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })

	writer := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicObservations)
	defer writer.Close()

	log.Info("observer-simulator started", zap.String("topic", cfg.TopicObservations))

	// A cada 2s gera um resultado "real" para uma janela e publica o
	// relato de cada observador; ~15% dos relatos divergem do real.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	window := 1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		streamID := streamCatalog[rand.Intn(len(streamCatalog))]
		windowID := fmt.Sprintf("W%06d", window)
		window++
		truth := randomValue()

		for _, obs := range observers {
			ev := events.ObservationReported{
				StreamID:   streamID,
				WindowID:   windowID,
				ObserverID: obs,
				Value:      jitter(truth, rand.Intn(100) < 15),
				TsUnixMs:   time.Now().UnixMilli(),
			}
			b, _ := json.Marshal(ev)
			if err := skafka.WriteJSON(ctx, writer, streamID+":"+windowID, b); err != nil {
				log.Warn("publish observation", zap.Error(err))
				continue
			}
			observationsSent.Inc()
		}
	}
}
