package order

type ConfirmOrderRequest struct {
	Key     string
	StaffID int64
}

type GetManyOrderRequest struct {
	EventID string `validate:"required"`
	Status  string `validate:"omitempty,oneof=PENDING PROCESSING CONFIRMED ERROR"`
}
