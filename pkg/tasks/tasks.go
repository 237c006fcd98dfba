// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "ragchat-go/internal/model"

// DocumentIngestTask represents an asynchronous batch-ingestion job.
type DocumentIngestTask struct {
	BatchID   string           `json:"batch_id"`
	Documents []model.Document `json:"documents"`
}
