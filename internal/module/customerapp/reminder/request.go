package reminder

type RunReminderSweepRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

type SweepResponse struct {
	EventID    string `json:"event_id"`
	Skipped    bool   `json:"skipped"`
	Reason     string `json:"reason,omitempty"`
	EmailsSent int    `json:"emails_sent"`
	SMSSent    int    `json:"sms_sent"`
	Suppressed int    `json:"suppressed"`
	Failed     int    `json:"failed"`
}
