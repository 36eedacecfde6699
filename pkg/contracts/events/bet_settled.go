package events

// Evento publicado no tópico "bet_settled" após a transição terminal de uma
// aposta. Também é o payload do broadcast WebSocket.
type BetSettled struct {
	BetID       string  `json:"bet_id"`
	UserID      string  `json:"user_id"`
	StreamID    string  `json:"stream_id"`
	WindowID    string  `json:"window_id"`
	BetType     string  `json:"bet_type"`
	Status      string  `json:"status"` // SETTLED_WON | SETTLED_LOST | VOIDED
	StakeCents  int64   `json:"stake_cents"`
	PayoutCents int64   `json:"payout_cents"` // 0 quando perdida; stake quando anulada
	OddValue    float64 `json:"odd_value"`
	TsUnixMs    int64   `json:"ts_unix_ms"`
}
