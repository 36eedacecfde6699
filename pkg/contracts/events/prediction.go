package events

// Prediction é o palpite tipado de uma aposta. Mesmo formato trafega no
// request de criação e no evento de liquidação.
type Prediction struct {
	Kind      string   `json:"kind"` // binary | quantity | timing | pattern
	WillOccur bool     `json:"will_occur,omitempty"`
	Value     float64  `json:"value,omitempty"`
	Tolerance float64  `json:"tolerance,omitempty"`
	Seconds   float64  `json:"seconds,omitempty"`
	Sequence  []string `json:"sequence,omitempty"`
}
