package job

import (
	"context"
	"encoding/json"
	"time"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// TaskTypeIngest processes a staged upload into the retrieval index.
const TaskTypeIngest = "ingest"

// IngestPayload points the worker at a staged upload.
type IngestPayload struct {
	SourceName string `json:"source_name"`
	Bucket     string `json:"bucket"`
	ObjectKey  string `json:"object_key"`
}

// Job represents a background job
type Job struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	TaskType  string          `gorm:"not null" json:"task_type"`
	Payload   json.RawMessage `gorm:"not null" json:"payload"`
	Status    JobStatus       `gorm:"not null" json:"status"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobRepository defines the interface for job persistence
type JobRepository interface {
	Create(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error)
	Get(ctx context.Context, id int64) (*Job, error)
	UpdateStatus(ctx context.Context, id int64, status JobStatus, err *string) error
}
