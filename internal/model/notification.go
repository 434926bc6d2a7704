package model

import "time"

const (
	NotificationTitleSuccess = "Completed Successfully"
	NotificationTitleErrors  = "Completed with Errors"

	// UploadCompleteEvent is the push event name clients listen for.
	UploadCompleteEvent = "excelProcessingComplete"
)

type FailureDocument struct {
	Row   StudentRow `json:"row"`
	Error string     `json:"error"`
}

type Notification struct {
	ID               int64             `json:"id" db:"id"`
	UserID           string            `json:"userId" db:"user_id"`
	Title            string            `json:"title" db:"title"`
	Message          string            `json:"message" db:"message"`
	Viewed           bool              `json:"viewed" db:"viewed"`
	FailureDocuments []FailureDocument `json:"failureDocuments" db:"failure_documents"`
	CreatedAt        time.Time         `json:"createdAt" db:"created_at"`
}

// BatchSummary is the final state of a batch handed over when it closes.
type BatchSummary struct {
	BatchID   string            `json:"batch_id"`
	UserID    string            `json:"user_id"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failures  []FailureDocument `json:"failures"`
	TimedOut  bool              `json:"timed_out"`
}

type UploadCompletePayload struct {
	SuccessCount int               `json:"successCount"`
	ErrorCount   int               `json:"errorCount"`
	ErrorRows    []FailureDocument `json:"errorRows"`
}

type PushEvent struct {
	Event string                `json:"event"`
	Data  UploadCompletePayload `json:"data"`
}
