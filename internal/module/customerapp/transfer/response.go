package transfer

import (
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
)

type TransferResponse struct {
	Key               string    `json:"key"`
	TicketKey         string    `json:"ticket_key"`
	EventID           string    `json:"event_id"`
	FromUserID        int64     `json:"from_user_id"`
	DestinationEmail  string    `json:"destination_email"`
	DestinationUserID *int64    `json:"destination_user_id"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (r *TransferResponse) PopulateFromEntity(t Transfer) {
	r.Key = t.Key
	r.TicketKey = t.TicketKey
	r.EventID = t.EventID
	r.FromUserID = t.FromUserID
	r.DestinationEmail = t.DestinationEmail
	r.DestinationUserID = t.DestinationUserID
	r.Status = t.Status
	r.CreatedAt = t.CreatedAt
	r.UpdatedAt = t.UpdatedAt
}

type TicketResponse struct {
	Key             string            `json:"key"`
	EventID         string            `json:"event_id"`
	TicketTypeID    string            `json:"ticket_type_id"`
	HolderID        int64             `json:"holder_id"`
	OwnerID         *int64            `json:"owner_id"`
	Roles           []string          `json:"roles"`
	Used            bool              `json:"used"`
	PendingTransfer *TransferResponse `json:"pending_transfer"`
}

func (r *TicketResponse) PopulateFromEntity(t ticket.Ticket) {
	r.Key = t.Key
	r.EventID = t.EventID
	r.TicketTypeID = t.TicketTypeID
	r.HolderID = t.HolderID
	r.OwnerID = t.OwnerID
	r.Roles = t.Roles
	r.Used = t.Used
}

type InitiateTransferResponse struct {
	Transfer TransferResponse `json:"transfer"`
	Ticket   TicketResponse   `json:"ticket"`
}

type CompleteTransfersResponse struct {
	Completed []TransferResponse `json:"completed"`
	Cancelled int                `json:"cancelled"`
	Skipped   int                `json:"skipped"`
}
