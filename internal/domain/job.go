package domain

// JobStatus is the state of a backend analysis job.
type JobStatus string

// Job status constants as reported by the analysis backend.
const (
	JobStatusStarted    JobStatus = "started"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether polling can stop.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// AnalysisProgress is the progress block of a status response.
type AnalysisProgress struct {
	HoldersProcessed        int     `json:"holdersProcessed"`
	HoldersTotal            int     `json:"holdersTotal"`
	HoldersPercent          float64 `json:"holdersPercent"`
	HoldersWithTransactions int     `json:"holdersWithTransactions"`
	BatchCurrent            int     `json:"batchCurrent"`
	BatchTotal              int     `json:"batchTotal"`
	BatchPercent            float64 `json:"batchPercent"`
	TransactionsUnique      int     `json:"transactionsUnique"`
	TransactionsTotal       int     `json:"transactionsTotal"`
	ElapsedSeconds          float64 `json:"elapsedSeconds"`
}

// AnalysisJob is a backend analysis job for one token.
type AnalysisJob struct {
	TokenID  string           `json:"tokenId"`
	Status   JobStatus        `json:"status"`
	Progress AnalysisProgress `json:"progress"`
}
