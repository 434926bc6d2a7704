package excel

import (
	stderrors "errors"
	"reflect"
	"strings"

	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// Validator checks that a row carries every required column and normalizes
// it. Free-text identity fields are upper-cased so comparisons downstream
// are case-insensitive by construction.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

func (v *Validator) ValidateRow(row model.StudentRow) (model.StudentRow, error) {
	row = trimRow(row)

	if err := v.validate.Struct(row); err != nil {
		var fieldErrs validator.ValidationErrors
		if !stderrors.As(err, &fieldErrs) {
			return model.StudentRow{}, err
		}
		missing := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			missing = append(missing, fe.Field())
		}
		return model.StudentRow{}, errors.ValidationError{Fields: missing}
	}

	return normalizeRow(row), nil
}

func trimRow(row model.StudentRow) model.StudentRow {
	row.Name = strings.TrimSpace(row.Name)
	row.RollNo = strings.TrimSpace(row.RollNo)
	row.Department = strings.TrimSpace(row.Department)
	row.LeetcodeUsername = ExtractHandle(row.LeetcodeUsername)
	row.GfgUsername = ExtractHandle(row.GfgUsername)
	row.CodechefUsername = ExtractHandle(row.CodechefUsername)
	row.Year = strings.TrimSpace(row.Year)
	row.BatchName = strings.TrimSpace(row.BatchName)
	return row
}

func normalizeRow(row model.StudentRow) model.StudentRow {
	row.Name = strings.ToUpper(row.Name)
	row.RollNo = strings.ToUpper(row.RollNo)
	row.Department = strings.ToUpper(row.Department)
	row.BatchName = strings.ToUpper(row.BatchName)
	return row
}

// ExtractHandle accepts either a bare username or a profile URL and returns
// the username: trailing slashes are dropped and the last path segment kept.
func ExtractHandle(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimRight(h, "/")
	if i := strings.LastIndex(h, "/"); i >= 0 {
		h = h[i+1:]
	}
	return strings.TrimSpace(h)
}
