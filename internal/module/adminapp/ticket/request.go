package ticket

type RestockRequest struct {
	TicketTypeID string `json:"-"`
	StaffID      int64  `json:"-"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
	Description  string `json:"description" validate:"max=255"`
}
