package order

import (
	"encoding/json"
	"time"
)

const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusConfirmed  = "CONFIRMED"
	StatusError      = "ERROR"
)

// Order is created PENDING by checkout or by staff and is only ever moved
// forward by the payment reconciler or a staff confirmation.
type Order struct {
	Key               string
	EventID           string
	CustomerID        *int64
	CustomerEmail     string
	Amount            float64
	NetReceivedAmount *float64
	Status            string
	ProviderResponse  json.RawMessage
	Items             []Item
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (o Order) Fulfillable() bool {
	return o.Status == StatusPending || o.Status == StatusProcessing
}

type Item struct {
	ID           int64
	OrderKey     string
	TicketTypeID string
	Price        float64
	Quantity     int64
}
