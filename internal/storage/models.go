package storage

import "time"

// Note represents a user's note. The wider application owns note CRUD; the
// indexing subsystem consumes notes read-only through NoteStore.
type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobStatus is the lifecycle state of an indexing job.
type JobStatus string

const (
	JobPending            JobStatus = "pending"
	JobRunning            JobStatus = "running"
	JobCompleted          JobStatus = "completed"
	JobPartiallyCompleted JobStatus = "partially_completed"
	JobFailed             JobStatus = "failed"
	JobCancelled          JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobPartiallyCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// allowedTransitions is the strict transition table for job statuses.
// Any transition not listed here is rejected by JobRepo.UpdateStatus.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobRunning, JobFailed, JobCancelled},
	JobRunning: {JobCompleted, JobPartiallyCompleted, JobFailed, JobCancelled},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IndexingJob tracks one indexing run for a user. Counters are owned
// exclusively by the running job; nothing else mutates them once it starts.
type IndexingJob struct {
	ID                  string
	UserID              string
	Status              JobStatus
	TotalNotes          int
	ProcessedNotes      int
	SkippedNotes        int
	DeletedNotes        int
	TotalChunks         int
	ProcessedChunks     int
	Errors              []string
	EmbeddingProvider   string
	EmbeddingModel      string
	VectorStoreProvider string
	StartedAt           *time.Time
	CompletedAt         *time.Time
	CreatedAt           time.Time
}

// QueryLog is one retrieval call's telemetry record. It is written once per
// retrieval and mutated exactly once afterwards to attach feedback.
type QueryLog struct {
	ID                   string
	UserID               string
	Query                string
	ConversationID       string
	CreatedAt            time.Time
	TotalTimeMs          int64
	QueryEmbeddingTimeMs int64
	VectorSearchTimeMs   int64
	RerankTimeMs         int64
	RetrievedCount       int
	FinalCount           int
	TopCosineScore       float64
	AvgCosineScore       float64
	TopRerankScore       *float64
	AvgRerankScore       *float64
	HybridSearchEnabled  bool
	HyDEEnabled          bool
	MultiQueryEnabled    bool
	RerankingEnabled     bool
	UserFeedback         string
	FeedbackCategory     string
	FeedbackComment      string
	TopicCluster         *int
	TopicLabel           string
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00" // RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
