package worker

// Request is one unit of work decoded from an inbound queue message. It is
// immutable once received.
type Request struct {
	RequestID       string `json:"request-id" validate:"required"`
	FilePath        string `json:"file-path" validate:"required"`
	FileID          string `json:"file-id" validate:"required"`
	ServiceEndpoint string `json:"service-endpoint" validate:"required"`
	ChunkSize       int    `json:"chunk-size" validate:"gt=0"`
}

// Status is the terminal state of a job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome is the terminal result of one job. Exactly one Outcome is
// produced per admitted Request.
type Outcome struct {
	Status          Status
	Attempts        int
	ElapsedSeconds  float64
	EventsProcessed int64
	BytesWritten    int64
	Err             error // last error, set only when Status is StatusFailed
}
