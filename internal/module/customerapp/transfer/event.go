package transfer

const TopicTicketTransferred = "ticket-transferred"

type TicketTransferredEvent struct {
	TransferKey   string `json:"transfer_key"`
	TicketKey     string `json:"ticket_key"`
	EventID       string `json:"event_id"`
	FromUserID    int64  `json:"from_user_id"`
	ToUserID      int64  `json:"to_user_id"`
	OwnerAssigned bool   `json:"owner_assigned"`
}
