package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/charlesms1246/home-iot-guard/internal/models"
)

// ScanRecord is the document shape indexed for each completed scan.
type ScanRecord struct {
	Timestamp    time.Time              `json:"timestamp"`
	ScanID       string                 `json:"scan_id"`
	AnomalyCount int                    `json:"anomaly_count"`
	TotalWindows int                    `json:"total_windows"`
	Threshold    float64                `json:"threshold"`
	Details      []models.AnomalyDetail `json:"details,omitempty"`
}

// ESLogger indexes scan activity into Elasticsearch.
type ESLogger struct {
	client *elasticsearch.Client
	index  string
}

// NewESLogger creates an Elasticsearch-backed scan logger.
func NewESLogger(addresses []string, username, password, index string) (*ESLogger, error) {
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %v", err)
	}

	return &ESLogger{client: client, index: index}, nil
}

// LogScan indexes one scan result.
func (l *ESLogger) LogScan(ctx context.Context, result *models.ScanResult) error {
	record := ScanRecord{
		Timestamp:    result.Timestamp,
		ScanID:       result.ID,
		AnomalyCount: result.AnomalyCount,
		TotalWindows: result.TotalWindows,
		Threshold:    result.Threshold,
		Details:      result.Details,
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal scan record: %v", err)
	}

	res, err := l.client.Index(
		l.index,
		bytes.NewReader(doc),
		l.client.Index.WithContext(ctx),
		l.client.Index.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("failed to index scan record: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing scan record: %s", res.String())
	}

	return nil
}
