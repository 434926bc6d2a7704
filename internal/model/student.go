package model

import "time"

// StudentRow is one spreadsheet row keyed by the canonical column names.
type StudentRow struct {
	Name             string `json:"name" validate:"required"`
	RollNo           string `json:"rollNo" validate:"required"`
	Department       string `json:"department" validate:"required"`
	LeetcodeUsername string `json:"leetcodeUsername" validate:"required"`
	GfgUsername      string `json:"gfgUsername" validate:"required"`
	CodechefUsername string `json:"codechefUsername" validate:"required"`
	Year             string `json:"year" validate:"required"`
	BatchName        string `json:"batchName" validate:"required"`
}

type Student struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	RollNo           string    `json:"roll_no" db:"roll_no"`
	Department       string    `json:"department" db:"department"`
	LeetcodeUsername string    `json:"leetcode_username" db:"leetcode_username"`
	GfgUsername      string    `json:"gfg_username" db:"gfg_username"`
	CodechefUsername string    `json:"codechef_username" db:"codechef_username"`
	Year             string    `json:"year" db:"year"`
	BatchName        *string   `json:"batch_name,omitempty" db:"batch_name"`
	IsPlaced         bool      `json:"is_placed" db:"is_placed"`
	CompanyID        *int64    `json:"company_id,omitempty" db:"company_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// StudentFromRow builds a new record from a normalized row.
func StudentFromRow(row StudentRow) *Student {
	s := &Student{
		Name:             row.Name,
		RollNo:           row.RollNo,
		Department:       row.Department,
		LeetcodeUsername: row.LeetcodeUsername,
		GfgUsername:      row.GfgUsername,
		CodechefUsername: row.CodechefUsername,
		Year:             row.Year,
	}
	if row.BatchName != "" {
		batch := row.BatchName
		s.BatchName = &batch
	}
	return s
}

type StudentFilter struct {
	BatchName  string
	Year       string
	Department string
}

func (f StudentFilter) IsEmpty() bool {
	return f.BatchName == "" && f.Year == "" && f.Department == ""
}
