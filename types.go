package main

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go out as JSON numbers, the frontend does arithmetic on them.
	decimal.MarshalJSONWithoutQuotes = true
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

type Subscription struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"-"`
	ServiceName   string          `json:"serviceName"`
	Amount        decimal.Decimal `json:"amount"`
	StartDate     *string         `json:"startDate"`
	EndDate       *string         `json:"endDate"`
	ManualRenewal bool            `json:"manualRenewal"`
	AutoRenewal   bool            `json:"autoRenewal"`
	CreatedAt     time.Time       `json:"createdAt"`
}
