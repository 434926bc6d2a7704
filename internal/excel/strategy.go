package excel

import (
	"context"

	"student-bulk-import/internal/model"
)

type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) ([]ParsedRow, error)
	ValidateRow(row model.StudentRow) (model.StudentRow, error)
}

type ExcelStrategy struct {
	parser    *Parser
	validator *Validator
}

func NewExcelStrategy() ParsingStrategy {
	return &ExcelStrategy{
		parser:    NewParser(),
		validator: NewValidator(),
	}
}

func (s *ExcelStrategy) Parse(ctx context.Context, data []byte) ([]ParsedRow, error) {
	return s.parser.Parse(ctx, data)
}

func (s *ExcelStrategy) ValidateRow(row model.StudentRow) (model.StudentRow, error) {
	return s.validator.ValidateRow(row)
}
