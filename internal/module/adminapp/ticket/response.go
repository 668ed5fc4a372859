package ticket

import (
	"time"

	customerTicket "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
)

type TicketTypeResponse struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Remaining   int64     `json:"remaining"`
	DirectIssue bool      `json:"direct_issue"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *TicketTypeResponse) PopulateFromEntity(tt customerTicket.TicketType) {
	r.ID = tt.ID
	r.EventID = tt.EventID
	r.Name = tt.Name
	r.Price = tt.Price
	r.Remaining = tt.Remaining
	r.DirectIssue = tt.DirectIssue
	r.UpdatedAt = tt.UpdatedAt
}
