package event

import (
	"net/http"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
)

// Event is catalog metadata. This service only reads it.
type Event struct {
	ID                    string
	Name                  string
	Active                bool
	TransfersEnabledUntil time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (e Event) TransfersOpen(now time.Time) bool {
	return now.Before(e.TransfersEnabledUntil)
}

// CheckTransferWindow must be the first guard of every operation that moves
// holdership or ownership of a ticket.
func (e Event) CheckTransferWindow(now time.Time) error {
	if !e.TransfersOpen(now) {
		return errors.New(http.StatusConflict, status.TRANSFER_WINDOW_CLOSED, "transfer window has closed")
	}

	return nil
}
