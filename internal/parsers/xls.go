package parsers

import (
	"bytes"
	"fmt"
	"io"

	"github.com/shakinm/xlsReader/xls"

	"wbs-auc-reconciliation/pkg/errors"
)

// sliceSource replays records that were loaded up front
type sliceSource struct {
	records [][]string
	lines   []int
	pos     int
}

func (s *sliceSource) Next() ([]string, int, error) {
	if s.pos >= len(s.records) {
		return nil, 0, io.EOF
	}
	record, line := s.records[s.pos], s.lines[s.pos]
	s.pos++
	return record, line, nil
}

func (s *sliceSource) Close() error {
	return nil
}

// newXLSSource loads one worksheet of a legacy BIFF8 workbook. The reader
// library needs random access, so the whole file is held in memory.
func newXLSSource(data []byte, source, sheet string) (*sliceSource, string, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.FileError(errors.CodeFileCorrupted, source, err)
	}

	if workbook.GetNumberSheets() == 0 {
		return nil, "", errors.ParseError(errors.CodeEmptyInput, source, 0, "", "",
			fmt.Errorf("no sheets found in workbook"))
	}

	var names []string
	for i := 0; i < workbook.GetNumberSheets(); i++ {
		ws, err := workbook.GetSheet(i)
		if err != nil || ws == nil {
			continue
		}
		name := ws.GetName()
		names = append(names, name)
		if sheet != "" && name != sheet {
			continue
		}

		src := &sliceSource{}
		for r := 0; r < ws.GetNumberRows(); r++ {
			row, err := ws.GetRow(r)
			if err != nil || row == nil {
				continue
			}
			cols := row.GetCols()
			record := make([]string, len(cols))
			for c, col := range cols {
				if col != nil {
					record[c] = col.GetString()
				}
			}
			src.records = append(src.records, record)
			src.lines = append(src.lines, r+1)
		}
		return src, name, nil
	}

	return nil, "", errors.ParseError(errors.CodeMissingSheet, source, 0, "sheet", sheet, nil).
		WithContext("available_sheets", names)
}
