package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contadores do engine, expostos no sidecar /metrics.
var (
	BetsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microbet_bets_placed_total",
		Help: "Apostas admitidas pelo engine.",
	})

	BetsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microbet_bets_rejected_total",
		Help: "Apostas rejeitadas na admissão, por motivo.",
	}, []string{"reason"})

	BetsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microbet_bets_settled_total",
		Help: "Transições terminais de apostas, por status.",
	}, []string{"status"})

	ObservationsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microbet_observations_consumed_total",
		Help: "Observações consumidas do Kafka.",
	})

	ConsensusOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microbet_consensus_outcomes_total",
		Help: "Resultados da agregação de consenso, por status.",
	}, []string{"status"})

	IngestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microbet_ingest_errors_total",
		Help: "Erros no pipeline de ingestão, por etapa.",
	}, []string{"stage"})

	LedgerMutations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microbet_ledger_mutations_total",
		Help: "Mutações de saldo aplicadas pelo ledger.",
	})
)
