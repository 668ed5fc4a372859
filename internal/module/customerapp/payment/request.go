package payment

// WebhookRequest is what the handler extracts from the provider's
// notification before anything is trusted.
type WebhookRequest struct {
	Signature string
	RequestID string
	DataID    string
	Type      string
}

type webhookBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

type ReconcileRequest struct {
	EventIDs []string `json:"event_ids"`
}
