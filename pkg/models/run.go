package models

import "time"

// RunKind identifies the engine a linkage run used
type RunKind string

const (
	RunKindClustering RunKind = "clustering"
	RunKindMatching   RunKind = "matching"
)

// RunStatus is the lifecycle state of a linkage run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// LinkageRun describes one clustering or matching run
type LinkageRun struct {
	ID          string     `json:"id" db:"id"`
	Kind        RunKind    `json:"kind" db:"kind"`
	Status      RunStatus  `json:"status" db:"status"`
	Dataset     string     `json:"dataset" db:"dataset"`
	Parameters  string     `json:"parameters" db:"parameters"`
	RecordCount int        `json:"record_count" db:"record_count"`
	ResultCount int        `json:"result_count" db:"result_count"`
	Error       *string    `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunProgress is the processed-count signal of a running run
type RunProgress struct {
	RunID     string    `json:"run_id"`
	Kind      RunKind   `json:"kind"`
	Status    RunStatus `json:"status"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityAssignment links an input row to its resolved entity
type EntityAssignment struct {
	RunID    string `json:"run_id" db:"run_id"`
	RowIndex int    `json:"row_index" db:"row_index"`
	RowKey   string `json:"row_key" db:"row_key"`
	EntityID int    `json:"entity_id" db:"entity_id"`
}

// ClusterResult is the outcome of a clustering run
type ClusterResult struct {
	RunID    string    `json:"run_id"`
	Labels   []int     `json:"labels"`
	Clusters []Cluster `json:"clusters"`
}

// MatchResult is the outcome of a matching run
type MatchResult struct {
	RunID   string           `json:"run_id"`
	Matches []MatchCandidate `json:"matches"`
}
