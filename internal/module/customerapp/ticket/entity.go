package ticket

import "time"

// TicketType is a purchasable category for one event. Remaining only goes
// down through Reserve and only goes up through Restock.
type TicketType struct {
	ID          string
	EventID     string
	Name        string
	Price       float64
	Remaining   int64
	DirectIssue bool
	UpdatedAt   time.Time
}

// Ticket is one minted admission credential. HolderID is always set;
// OwnerID is nil until someone claims the ticket to attend with it.
type Ticket struct {
	Key          string
	EventID      string
	TicketTypeID string
	OrderKey     string
	HolderID     int64
	OwnerID      *int64
	Roles        []string
	Used         bool
	UsedAt       *time.Time
	UsedBy       *int64
	Notes        string
	PhotoURL     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t Ticket) OwnedBy(userID int64) bool {
	return t.OwnerID != nil && *t.OwnerID == userID
}

// SetOwner changes the owner and drops volunteer roles, which belonged to
// the previous owner.
func (t *Ticket) SetOwner(ownerID *int64, now time.Time) {
	t.OwnerID = ownerID
	t.Roles = nil
	t.UpdatedAt = now
}
