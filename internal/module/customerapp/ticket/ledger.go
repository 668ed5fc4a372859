package ticket

import (
	"fmt"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
)

// Reserve takes quantity units of capacity from tt. The caller must hold the
// row lock on tt (FindByIDForUpdate) in the transaction that mints the
// tickets and persists the returned value.
func Reserve(tt TicketType, quantity int64) (TicketType, error) {
	if quantity <= 0 {
		return tt, errors.New(http.StatusBadRequest, status.BAD_REQUEST, fmt.Sprintf("invalid quantity %d for ticket type '%s'", quantity, tt.ID))
	}

	if tt.Remaining < quantity {
		return tt, errors.New(http.StatusConflict, status.INSUFFICIENT_CAPACITY, fmt.Sprintf("not enough '%s' tickets left", tt.Name))
	}

	tt.Remaining -= quantity

	return tt, nil
}

// Restock is the only way capacity increases.
func Restock(tt TicketType, quantity int64) (TicketType, error) {
	if quantity <= 0 {
		return tt, errors.New(http.StatusBadRequest, status.BAD_REQUEST, fmt.Sprintf("invalid restock quantity %d", quantity))
	}

	tt.Remaining += quantity

	return tt, nil
}
