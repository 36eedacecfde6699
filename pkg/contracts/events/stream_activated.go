package events

// Evento consumido do tópico "stream_activations" (colaborador de billing).
// ReserveCents opcional; quando zero, o engine aplica a fração configurada.
type StreamActivated struct {
	UserID       string `json:"user_id"`
	StreamID     string `json:"stream_id"`
	DepositCents int64  `json:"deposit_cents"`
	ReserveCents int64  `json:"reserve_cents,omitempty"`
	TsUnixMs     int64  `json:"ts_unix_ms"`
}
