// Package models holds the shared data types exchanged between the
// detection core, the history store, and the HTTP API.
package models

import "time"

// AnomalyDetail describes one anomalous window in a scan.
type AnomalyDetail struct {
	WindowIndex int     `json:"window_index"`
	Rows        string  `json:"rows"`
	Error       float64 `json:"error"`
	Severity    string  `json:"severity"`
}

// ScanSummary is the detection core's answer for one uploaded batch. The
// detail list is capped; AnomalyCount carries the true total.
type ScanSummary struct {
	TotalWindows int             `json:"total_samples"`
	AnomalyCount int             `json:"anomalies_count"`
	Threshold    float64         `json:"threshold"`
	Percentage   float64         `json:"percentage"`
	Details      []AnomalyDetail `json:"details"`
}

// ScanResult is a persisted scan record.
type ScanResult struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	AnomalyCount int             `json:"anomalies_count"`
	TotalWindows int             `json:"total_samples"`
	Threshold    float64         `json:"threshold"`
	Details      []AnomalyDetail `json:"details"`
}
