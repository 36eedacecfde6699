package topics

const (
	// Observações de eventos (analytics -> engine)
	EventObservations = "event_observations"

	// Ativações de stream (billing -> engine)
	StreamActivations = "stream_activations"

	// Liquidações (engine -> downstream)
	BetSettled = "bet_settled"

	// DLQs
	EventObservationsDLQ = "event_observations_dlq"
)
