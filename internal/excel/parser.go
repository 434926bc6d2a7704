package excel

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"

	"github.com/xuri/excelize/v2"
)

// columnAliases maps a folded header (lower case, no spaces, dashes or
// underscores) to the canonical column it feeds.
var columnAliases = map[string]string{
	"name":             "name",
	"fullname":         "name",
	"studentname":      "name",
	"rollno":           "rollNo",
	"rollnumber":       "rollNo",
	"department":       "department",
	"dept":             "department",
	"leetcodeusername": "leetcodeUsername",
	"leetcode":         "leetcodeUsername",
	"gfgusername":      "gfgUsername",
	"gfg":              "gfgUsername",
	"codechefusername": "codechefUsername",
	"codechef":         "codechefUsername",
	"year":             "year",
	"batchname":        "batchName",
	"batch":            "batchName",
}

// ParsedRow is a data row with its 1-based sheet row number.
type ParsedRow struct {
	Number int
	Row    model.StudentRow
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]ParsedRow, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFileFormat, err)
	}
	defer file.Close()

	// Only the first worksheet is read
	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	if len(rows) < 2 { // header only, or nothing at all
		return nil, nil
	}

	columnMap := make(map[string]int)
	for i, col := range rows[0] {
		if canonical, ok := columnAliases[foldHeader(col)]; ok {
			if _, seen := columnMap[canonical]; !seen {
				columnMap[canonical] = i
			}
		}
	}

	var parsed []ParsedRow
	for i, row := range rows[1:] {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isBlank(row) {
			continue
		}
		parsed = append(parsed, ParsedRow{
			Number: i + 2, // header is row 1
			Row:    p.parseRow(row, columnMap),
		})
	}

	return parsed, nil
}

func (p *Parser) parseRow(row []string, columnMap map[string]int) model.StudentRow {
	getValue := func(colName string) string {
		if idx, exists := columnMap[colName]; exists && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	return model.StudentRow{
		Name:             getValue("name"),
		RollNo:           getValue("rollNo"),
		Department:       getValue("department"),
		LeetcodeUsername: getValue("leetcodeUsername"),
		GfgUsername:      getValue("gfgUsername"),
		CodechefUsername: getValue("codechefUsername"),
		Year:             getValue("year"),
		BatchName:        getValue("batchName"),
	}
}

func foldHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(h)
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
