package model

import "time"

// StudentJob is the queue payload for a single row of a batch.
type StudentJob struct {
	StudentRow
	RowNumber int    `json:"rowNumber"`
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
	// ReplyTo is the event queue of the API instance tracking the batch.
	ReplyTo string `json:"replyTo,omitempty"`
}

type JobStatus string

const (
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobEvent is the terminal event a worker reports for one StudentJob.
type JobEvent struct {
	RequestID  string     `json:"requestId"`
	UserID     string     `json:"userId"`
	RowNumber  int        `json:"rowNumber"`
	Status     JobStatus  `json:"status"`
	Row        StudentRow `json:"row"`
	Error      string     `json:"error,omitempty"`
	FinishedAt time.Time  `json:"finishedAt"`
}

type ImportProgress struct {
	RequestID string    `json:"request_id"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Pending   int       `json:"pending"`
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline"`
}

type UploadResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Rows      int    `json:"rows"`
}

type UploadEntryRequest struct {
	Name string `json:"name" binding:"required"`
}

type NotificationUpdateRequest struct {
	Viewed bool `json:"viewed"`
}
