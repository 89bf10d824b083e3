package job

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the status admits no further transitions. A
// terminal record is never reused; a retry creates a new record.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Category names the two poller lanes. Records of different categories are
// tracked and polled independently.
type Category string

const (
	CategorySingle Category = "single"
	CategoryBatch  Category = "batch"
)

// SingleJob tracks one form-automation run for a single visit. RemoteJobID
// stays empty until the engine accepts the run; until then the record cannot
// be matched by a poller.
type SingleJob struct {
	ID             string    `json:"id"`
	RemoteJobID    string    `json:"remote_job_id,omitempty"`
	TargetURL      string    `json:"target_url"`
	Status         Status    `json:"status"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
	Headless       bool      `json:"headless"`
	StoreName      string    `json:"store_name,omitempty"`
	VisitNumber    string    `json:"visit_number,omitempty"`
	DispenserCount int       `json:"dispenser_count,omitempty"`
	StartedAt      int64     `json:"started_at,omitempty"` // unix seconds
	EndedAt        int64     `json:"ended_at,omitempty"`   // unix seconds
}

// BatchJob tracks a multi-visit run. CompletedVisits is non-decreasing while
// the run is in flight.
type BatchJob struct {
	ID              string    `json:"id"`
	RemoteJobID     string    `json:"remote_job_id,omitempty"`
	SourcePath      string    `json:"source_path"`
	Status          Status    `json:"status"`
	Message         string    `json:"message"`
	CreatedAt       time.Time `json:"created_at"`
	TotalVisits     int       `json:"total_visits"`
	CompletedVisits int       `json:"completed_visits"`
	Headless        bool      `json:"headless"`
	EndedAt         int64     `json:"ended_at,omitempty"` // unix seconds
}

func NewSingle(targetURL string, headless bool, visitNumber string) *SingleJob {
	now := time.Now().UTC()
	return &SingleJob{
		ID:          uuid.NewString(),
		TargetURL:   targetURL,
		Status:      StatusRunning,
		CreatedAt:   now,
		Headless:    headless,
		VisitNumber: visitNumber,
		StartedAt:   now.Unix(),
	}
}

func NewBatch(sourcePath string, headless bool, totalVisits int) *BatchJob {
	return &BatchJob{
		ID:          uuid.NewString(),
		SourcePath:  sourcePath,
		Status:      StatusRunning,
		CreatedAt:   time.Now().UTC(),
		TotalVisits: totalVisits,
		Headless:    headless,
	}
}

// DefaultHistoryLimit caps the single-job history list kept for the
// dashboard. Terminal jobs stay as history entries; nothing is ever deleted
// individually.
const DefaultHistoryLimit = 20

// PrependHistory puts rec at the front of history, most-recent-first, and
// trims the list to limit entries.
func PrependHistory(history []*SingleJob, rec *SingleJob, limit int) []*SingleJob {
	out := make([]*SingleJob, 0, len(history)+1)
	out = append(out, rec)
	out = append(out, history...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
