package model

// ProgressSnapshot is the live view of a campaign run. It is not a table;
// the in-memory tracker owns it and mirrors it to redis.
type ProgressSnapshot struct {
	CampaignID int64   `json:"campaign_id"`
	Sent       int     `json:"sent"`
	Failed     int     `json:"failed"`
	Total      int     `json:"total"`
	Rate       float64 `json:"rate"` // sends per minute
	ETA        string  `json:"eta"`  // "3m 20s", "1h 2m", or "calculating"
}

// CampaignStats is the aggregate returned by the stats endpoint.
type CampaignStats struct {
	Campaigns       int64 `json:"campaigns"`
	ActiveCampaigns int64 `json:"active_campaigns"`
	Recipients      int64 `json:"recipients"`
	Sent            int64 `json:"sent"`
	Failed          int64 `json:"failed"`
	Suppressed      int64 `json:"suppressed"`
}
