package order

const TopicOrderConfirmed = "order-confirmed"

type OrderConfirmedEvent struct {
	OrderKey   string   `json:"order_key"`
	EventID    string   `json:"event_id"`
	CustomerID int64    `json:"customer_id"`
	TicketKeys []string `json:"ticket_keys"`
}
