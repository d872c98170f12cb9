package models

// MetricsSnapshot point-in-time admin metrics
type MetricsSnapshot struct {
	OnlineUsers           int64   `json:"onlineUsers"`
	ActiveRooms           int64   `json:"activeRooms"`
	AvgSessionDurationSec float64 `json:"avgSessionDurationSec"`
	PeakOnlineUsers       int64   `json:"peakOnlineUsers"`
	At                    int64   `json:"at"` // unix ms
}
