// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry
type Entry struct {
	Rank         int     `json:"rank"`
	ModelID      int64   `json:"model_id"`
	Name         string  `json:"name"`
	Version      string  `json:"version"`
	TotalBattles int     `json:"total_battles"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"win_rate"`
}

// Stats summarises service state for the stats endpoint.
type Stats struct {
	Models      int64 `json:"models"`
	Benchmarks  int64 `json:"benchmarks"`
	Battles     int64 `json:"battles"`
	Connections int   `json:"connections"`
	Sessions    int   `json:"sessions"`
	Degraded    bool  `json:"degraded"`
	QueueSize   int   `json:"series_queue_size"`
	QueueCap    int   `json:"series_queue_capacity"`
	Workers     int   `json:"series_workers"`
}
