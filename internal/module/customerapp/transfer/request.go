package transfer

type InitiateTransferRequest struct {
	TicketKey        string `json:"-"`
	FromUserID       int64  `json:"-"`
	DestinationEmail string `json:"destination_email" validate:"required,email"`
}

type CancelTransferRequest struct {
	TransferKey string
	RequesterID int64
}

type AssignTicketRequest struct {
	TicketKey string
	UserID    int64
}

type GetManyHeldTicketsRequest struct {
	EventID  string `validate:"required"`
	HolderID int64
}

type GetManyOutgoingTransfersRequest struct {
	EventID    string `validate:"required"`
	FromUserID int64
}
