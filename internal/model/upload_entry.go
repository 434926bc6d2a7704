package model

import "time"

type UploadEntryType string

const (
	UploadEntryBatch      UploadEntryType = "batch"
	UploadEntryYear       UploadEntryType = "year"
	UploadEntryDepartment UploadEntryType = "department"
	UploadEntryClass      UploadEntryType = "class"
	UploadEntrySection    UploadEntryType = "section"
)

func (t UploadEntryType) Valid() bool {
	switch t {
	case UploadEntryBatch, UploadEntryYear, UploadEntryDepartment, UploadEntryClass, UploadEntrySection:
		return true
	}
	return false
}

type UploadEntry struct {
	ID        int64           `json:"id" db:"id"`
	Type      UploadEntryType `json:"type" db:"type"`
	Name      string          `json:"name" db:"name"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
