package events

// Tipos de aposta / de valor observado. Compartilhados entre predição,
// observação e liquidação.
const (
	KindBinary   = "binary"
	KindQuantity = "quantity"
	KindTiming   = "timing"
	KindPattern  = "pattern"
)

// ObservedValue é o valor reportado por um observador para uma janela.
// Apenas os campos do Kind correspondente são relevantes.
type ObservedValue struct {
	Kind     string   `json:"kind"` // binary | quantity | timing | pattern
	Occurred bool     `json:"occurred,omitempty"`
	Value    float64  `json:"value,omitempty"`
	Seconds  float64  `json:"seconds,omitempty"`
	Sequence []string `json:"sequence,omitempty"`
}

// Evento consumido do tópico "event_observations".
// Cada mensagem é o relato de UM observador independente.
type ObservationReported struct {
	StreamID   string        `json:"stream_id"`
	WindowID   string        `json:"window_id"`
	ObserverID string        `json:"observer_id"`
	Value      ObservedValue `json:"value"`
	TsUnixMs   int64         `json:"ts_unix_ms"`
}
