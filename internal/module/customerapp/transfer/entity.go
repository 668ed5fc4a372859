package transfer

import "time"

const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// Transfer moves a ticket's holdership to whoever owns DestinationEmail.
// COMPLETED and CANCELLED are terminal.
type Transfer struct {
	Key               string
	TicketKey         string
	EventID           string
	FromUserID        int64
	DestinationEmail  string
	DestinationUserID *int64
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (t Transfer) Pending() bool {
	return t.Status == StatusPending
}

func (t *Transfer) Complete(destinationUserID int64, now time.Time) {
	t.DestinationUserID = &destinationUserID
	t.Status = StatusCompleted
	t.UpdatedAt = now
}

func (t *Transfer) Cancel(now time.Time) {
	t.Status = StatusCancelled
	t.UpdatedAt = now
}
