package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"docchat/src/core/ingest"
	"docchat/src/storage/minioctrl"
)

// JobsTopic is the queue the ingestion worker consumes.
const JobsTopic = "jobs"

type JobService struct {
	publisher message.Publisher
	repo      JobRepository
	logger    watermill.LoggerAdapter
	ingester  *ingest.Service
	uploads   *minioctrl.MinioService
}

type JobMessage struct {
	JobID    int64           `json:"job_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	logger watermill.LoggerAdapter,
	ingester *ingest.Service,
	uploads *minioctrl.MinioService,
) *JobService {
	return &JobService{
		publisher: publisher,
		repo:      repo,
		logger:    logger,
		ingester:  ingester,
		uploads:   uploads,
	}
}

// EnqueueIngest records an ingestion job for a staged upload and publishes
// it to the queue.
func (s *JobService) EnqueueIngest(ctx context.Context, payload IngestPayload) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingest payload: %w", err)
	}

	job, err := s.repo.Create(ctx, TaskTypeIngest, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobMsg := JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	}
	msgPayload, err := json.Marshal(jobMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(JobsTopic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	return job, nil
}

// StageIngest uploads the raw document to the staging bucket and enqueues
// an ingestion job for it.
func (s *JobService) StageIngest(ctx context.Context, sourceName string, content []byte) (*Job, error) {
	objectKey := fmt.Sprintf("%s_%s", watermill.NewUUID(), sourceName)
	if err := s.uploads.PutObject(ctx, minioctrl.UploadsBucket, objectKey, content); err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	return s.EnqueueIngest(ctx, IngestPayload{
		SourceName: sourceName,
		Bucket:     minioctrl.UploadsBucket,
		ObjectKey:  objectKey,
	})
}

// ProcessJobMessage processes a job message from the queue
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	ctx := context.Background()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %d", jobMsg.JobID)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusRunning, nil); err != nil {
		return fmt.Errorf("failed to update job status to running: %w", err)
	}

	err = s.processJob(ctx, job)

	if err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &errStr); updateErr != nil {
			s.logger.Error("Failed to update job status to failed", updateErr, watermill.LogFields{
				"job_id": job.ID,
			})
		}
		return fmt.Errorf("failed to process job: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	return nil
}

// processJob handles different types of jobs
func (s *JobService) processJob(ctx context.Context, j *Job) error {
	switch j.TaskType {
	case TaskTypeIngest:
		var payload IngestPayload
		if err := json.Unmarshal(j.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal ingest payload: %w", err)
		}
		return s.handleIngest(ctx, j.ID, payload)
	default:
		return fmt.Errorf("unknown task type: %s", j.TaskType)
	}
}

// handleIngest pulls the staged object, runs the ingestion pipeline, and
// removes the staged copy on success.
func (s *JobService) handleIngest(ctx context.Context, jobID int64, payload IngestPayload) error {
	content, err := s.uploads.GetObject(ctx, payload.Bucket, payload.ObjectKey)
	if err != nil {
		return fmt.Errorf("failed to fetch staged upload: %w", err)
	}

	receipt, err := s.ingester.Ingest(ctx, payload.SourceName, content)
	if err != nil {
		return err
	}

	s.logger.Info("Ingest job completed", watermill.LogFields{
		"job_id": jobID,
		"doc_id": receipt.DocID,
		"chunks": receipt.ChunkCount,
	})

	if err := s.uploads.DeleteObject(ctx, payload.Bucket, payload.ObjectKey); err != nil {
		s.logger.Error("Failed to remove staged upload", err, watermill.LogFields{
			"job_id": jobID,
			"object": payload.ObjectKey,
		})
	}

	return nil
}
