package sheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/linkpulse/collector/internal/errors"
)

const (
	// The export workbook carries the post list on its third sheet; the
	// first three rows are headers.
	postSheetIndex = 2
	firstDataRow   = 3
	postColumn     = 0
)

// ExtractPostURLs parses an exported analytics workbook and returns the post
// permalinks from the third sheet, in row order. Cells that are empty or do
// not look like post URLs are skipped silently; a workbook with fewer than
// three sheets is a format error.
func ExtractPostURLs(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Format("failed to parse workbook").WithCause(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) < postSheetIndex+1 {
		return nil, apperrors.Format(fmt.Sprintf("workbook has %d sheets, need at least %d", len(sheets), postSheetIndex+1))
	}

	rows, err := f.GetRows(sheets[postSheetIndex])
	if err != nil {
		return nil, apperrors.Format("failed to read post sheet").WithCause(err)
	}

	var urls []string
	for i := firstDataRow; i < len(rows); i++ {
		row := rows[i]
		if len(row) <= postColumn {
			continue
		}
		cell := strings.TrimSpace(row[postColumn])
		if cell == "" || !IsPostURL(cell) {
			continue
		}
		urls = append(urls, cell)
	}
	return urls, nil
}
