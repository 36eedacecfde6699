package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/microbet-engine-poc/internal/consensus"
	"github.com/radieske/microbet-engine-poc/internal/engine"
	"github.com/radieske/microbet-engine-poc/internal/ledger"
	"github.com/radieske/microbet-engine-poc/internal/microbet/archive"
	"github.com/radieske/microbet-engine-poc/internal/microbet/balancecache"
	mhttp "github.com/radieske/microbet-engine-poc/internal/microbet/http"
	"github.com/radieske/microbet-engine-poc/internal/microbet/ingest"
	"github.com/radieske/microbet-engine-poc/internal/microbet/metrics"
	"github.com/radieske/microbet-engine-poc/internal/microbet/producer"
	"github.com/radieske/microbet-engine-poc/internal/microbet/pubsub"
	"github.com/radieske/microbet-engine-poc/internal/microbet/ws"
	"github.com/radieske/microbet-engine-poc/internal/ratelimit"
	"github.com/radieske/microbet-engine-poc/internal/resolver"
	"github.com/radieske/microbet-engine-poc/internal/shared/cache"
	"github.com/radieske/microbet-engine-poc/internal/shared/config"
	"github.com/radieske/microbet-engine-poc/internal/shared/db"
	skafka "github.com/radieske/microbet-engine-poc/internal/shared/kafka"
	"github.com/radieske/microbet-engine-poc/internal/shared/logger"
	smetrics "github.com/radieske/microbet-engine-poc/internal/shared/metrics"
	"github.com/radieske/microbet-engine-poc/internal/txlog"
	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres: arquivo durável do ledger e das apostas
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()
	arch := archive.NewPostgres(pg)

	// Redis: cache de saldo + pub/sub de liquidações
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	balCache := balancecache.NewRedisCache(rdb, time.Duration(cfg.BalanceCacheTTLSecs)*time.Second)
	broadcaster := pubsub.NewRedisBroadcaster(rdb)

	// Kafka
	obsReader := skafka.NewReader(cfg.KafkaBrokers, cfg.TopicObservations, "microbet-observations")
	defer obsReader.Close()
	actReader := skafka.NewReader(cfg.KafkaBrokers, cfg.TopicActivations, "microbet-activations")
	defer actReader.Close()
	settledWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledWriter.Close()
	dlqWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicObservationsDLQ)
	defer dlqWriter.Close()

	// Núcleo do engine: txlog -> ledger -> limiter -> consenso -> resolver -> engine
	tx := txlog.New()
	tx.SetSink(arch)

	led := ledger.New(log, tx)
	led.OnChange = func(snap ledger.Snapshot) {
		metrics.LedgerMutations.Inc()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := balCache.SetSnapshot(cctx, snap); err != nil {
			log.Warn("balance cache set failed", zap.String("userId", snap.UserID), zap.Error(err))
		}
	}

	limiter := ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitRefillPerSec)
	validator := consensus.New(log, cfg.ConsensusQuorum, cfg.ConsensusEpsilon)
	res := resolver.New(log, led)
	res.SetRetention(time.Duration(cfg.BetRetentionSecs) * time.Second)
	eng := engine.New(log, engine.DefaultConfig(), led, limiter, res)

	// Janitor: janela sem quórum nunca passa por Resolve; descarte
	// periódico por idade evita acúmulo indefinido
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := validator.Sweep(time.Duration(cfg.ConsensusWindowTTLSecs) * time.Second); n > 0 {
					log.Debug("janelas de consenso descartadas por idade", zap.Int("windows", n))
				}
			}
		}
	}()

	settledPub := producer.NewKafkaPublisher(settledWriter)
	res.OnSettled = func(e events.BetSettled) {
		metrics.BetsSettled.WithLabelValues(e.Status).Inc()

		pctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := settledPub.PublishBetSettled(pctx, e); err != nil {
			log.Error("publish bet_settled", zap.String("betId", e.BetID), zap.Error(err))
		}
		if b, jerr := json.Marshal(e); jerr == nil {
			if err := broadcaster.Publish(pctx, cfg.RedisPubSubChannel, b); err != nil {
				log.Warn("settlement broadcast", zap.String("betId", e.BetID), zap.Error(err))
			}
		}
		if err := arch.MarkSettled(pctx, e.BetID, e.Status, e.PayoutCents); err != nil {
			log.Warn("archive settle", zap.String("betId", e.BetID), zap.Error(err))
		}
	}

	// Workers de ingestão
	obsProc := &ingest.ObservationProcessor{
		Log:       log,
		Reader:    obsReader,
		Consensus: validator,
		Resolver:  res,
		DLQ:       dlqWriter,

		OnConsumed: metrics.ObservationsConsumed.Inc,
		OnOutcome:  func(st string) { metrics.ConsensusOutcomes.WithLabelValues(st).Inc() },
		OnError:    func(stage string) { metrics.IngestErrors.WithLabelValues(stage).Inc() },
	}
	go func() {
		if err := obsProc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("observation processor", zap.Error(err))
		}
	}()

	actProc := &ingest.ActivationProcessor{
		Log:             log,
		Reader:          actReader,
		Ledger:          led,
		ReserveFraction: cfg.ReserveFraction,
		OnError:         func(stage string) { metrics.IngestErrors.WithLabelValues(stage).Inc() },
	}
	go func() {
		if err := actProc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("activation processor", zap.Error(err))
		}
	}()

	// WS de liquidações alimentado pelo Pub/Sub do Redis
	hub := ws.NewHub(func(r *http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, rdb, hub)

	// HTTP público
	api := mhttp.NewServer(log, eng, led, res, arch, cfg.ReserveFraction)
	appMux := http.NewServeMux()
	appMux.Handle("/", api.Router())
	appMux.HandleFunc("/ws", hub.HandleWS)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: appMux,
	}

	// metrics/health
	smetrics.StartMetricsServer(cfg.MetricsPort, func(hctx context.Context) error {
		if err := pg.PingContext(hctx); err != nil {
			return err
		}
		return rdb.Ping(hctx).Err()
	})

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = apiSrv.Shutdown(sctx)
	}()

	log.Info("microbet-service listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
