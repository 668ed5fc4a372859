package order

import (
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
)

type FulfillOrderResponse struct {
	Order            OrderResponse    `json:"order"`
	Tickets          []TicketResponse `json:"tickets"`
	AlreadyFulfilled bool             `json:"already_fulfilled"`
}

type OrderResponse struct {
	Key               string         `json:"key"`
	EventID           string         `json:"event_id"`
	CustomerID        *int64         `json:"customer_id"`
	CustomerEmail     string         `json:"customer_email"`
	Amount            float64        `json:"amount"`
	NetReceivedAmount *float64       `json:"net_received_amount"`
	Status            string         `json:"status"`
	Items             []ItemResponse `json:"items"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (r *OrderResponse) PopulateFromEntity(o Order) {
	r.Key = o.Key
	r.EventID = o.EventID
	r.CustomerID = o.CustomerID
	r.CustomerEmail = o.CustomerEmail
	r.Amount = o.Amount
	r.NetReceivedAmount = o.NetReceivedAmount
	r.Status = o.Status
	r.CreatedAt = o.CreatedAt
	r.UpdatedAt = o.UpdatedAt

	r.Items = make([]ItemResponse, len(o.Items))
	for k, v := range o.Items {
		r.Items[k] = ItemResponse{
			TicketTypeID: v.TicketTypeID,
			Price:        v.Price,
			Quantity:     v.Quantity,
		}
	}
}

type ItemResponse struct {
	TicketTypeID string  `json:"ticket_type_id"`
	Price        float64 `json:"price"`
	Quantity     int64   `json:"quantity"`
}

type TicketResponse struct {
	Key          string `json:"key"`
	TicketTypeID string `json:"ticket_type_id"`
	HolderID     int64  `json:"holder_id"`
	OwnerID      *int64 `json:"owner_id"`
	Credential   string `json:"credential"`
}

func (r *TicketResponse) PopulateFromEntity(t ticket.Ticket, credential string) {
	r.Key = t.Key
	r.TicketTypeID = t.TicketTypeID
	r.HolderID = t.HolderID
	r.OwnerID = t.OwnerID
	r.Credential = credential
}
