package dto

type PlaceBetResponse struct {
	BetID          string  `json:"betId"`
	Status         string  `json:"status"` // PENDING
	OddValue       float64 `json:"odd_value"`
	HeldCents      int64   `json:"held_cents"`
	AvailableCents int64   `json:"available_cents"`
}

type BetStatusResponse struct {
	BetID       string `json:"betId"`
	Status      string `json:"status"`
	PayoutCents int64  `json:"payout_cents,omitempty"`
}

type BalanceResponse struct {
	UserID         string `json:"userId"`
	AvailableCents int64  `json:"available_cents"`
	HeldCents      int64  `json:"held_cents"`
	ReserveCents   int64  `json:"reserve_cents"`
	DepositedCents int64  `json:"deposited_cents"`
	WonCents       int64  `json:"won_cents"`
	LostCents      int64  `json:"lost_cents"`
	BetCount       int64  `json:"bet_count"`
	Frozen         bool   `json:"frozen,omitempty"`
}

type ActivateResponse struct {
	UserID         string `json:"userId"`
	StreamID       string `json:"streamId"`
	AvailableCents int64  `json:"available_cents"`
	ReserveCents   int64  `json:"reserve_cents"`
}
