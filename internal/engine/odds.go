package engine

import "time"

// OddsTable calcula a odd de admissão: odd base por tipo ajustada pelo
// tamanho da janela (janela curta paga mais). Tabela é insumo de
// configuração, não regra do engine.
type OddsTable struct {
	Base map[string]float64

	ShortWindow  time.Duration // abaixo disso aplica ShortFactor
	MediumWindow time.Duration // abaixo disso fator neutro
	ShortFactor  float64
	LongFactor   float64
}

func (t OddsTable) Odd(kind string, window time.Duration) float64 {
	base, ok := t.Base[kind]
	if !ok {
		return 0
	}
	switch {
	case window < t.ShortWindow:
		return base * t.ShortFactor
	case window < t.MediumWindow:
		return base
	default:
		return base * t.LongFactor
	}
}
