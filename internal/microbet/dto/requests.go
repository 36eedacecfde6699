package dto

import "github.com/radieske/microbet-engine-poc/pkg/contracts/events"

type PlaceBetRequest struct {
	UserID        string            `json:"userId"`
	StreamID      string            `json:"streamId"`
	WindowID      string            `json:"windowId,omitempty"` // janela de consenso; default = betId
	BetType       string            `json:"betType"`            // binary | quantity | timing | pattern
	StakeCents    int64             `json:"stake_cents"`
	Prediction    events.Prediction `json:"prediction"`
	WindowSeconds int64             `json:"window_seconds"`
}

type ActivateRequest struct {
	UserID       string `json:"userId"`
	StreamID     string `json:"streamId"`
	DepositCents int64  `json:"deposit_cents"`
	ReserveCents int64  `json:"reserve_cents,omitempty"` // 0 = aplica fração configurada
}
