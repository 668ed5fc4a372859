package ticket

import "time"

const JournalActionRestock = "RESTOCK"

// CapacityJournal is an append-only record of staff changes to a ticket
// type's remaining capacity.
type CapacityJournal struct {
	ID           int64
	TicketTypeID string
	Action       string
	Quantity     int64
	Remaining    int64
	Description  string
	StaffID      int64
	CreatedAt    time.Time
}
