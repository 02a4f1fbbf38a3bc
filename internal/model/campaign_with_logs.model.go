package model

import "time"

// CampaignWithSendLogs is the aggregate used by the event export: one
// campaign row joined with every log entry written for it.
type CampaignWithSendLogs struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Subject   string          `json:"subject"`
	Status    CampaignStatus  `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	SendLogs  []*SendLogEntry `json:"send_logs"`
}
