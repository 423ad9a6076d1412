package parsers

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"wbs-auc-reconciliation/pkg/errors"
)

// xlsxSource streams the rows of one worksheet of an .xlsx workbook
type xlsxSource struct {
	file  *excelize.File
	rows  *excelize.Rows
	sheet string
	line  int
}

func newXLSXSource(r io.Reader, source, sheet string) (*xlsxSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, source, err)
	}

	sheetName, err := resolveXLSXSheet(f, source, sheet)
	if err != nil {
		f.Close()
		return nil, err
	}

	rows, err := f.Rows(sheetName)
	if err != nil {
		f.Close()
		return nil, errors.FileError(errors.CodeFileCorrupted, source, err)
	}

	return &xlsxSource{file: f, rows: rows, sheet: sheetName}, nil
}

func resolveXLSXSheet(f *excelize.File, source, sheet string) (string, error) {
	if sheet == "" {
		name := f.GetSheetName(0)
		if name == "" {
			return "", errors.ParseError(errors.CodeEmptyInput, source, 0, "", "",
				fmt.Errorf("no sheets found in workbook"))
		}
		return name, nil
	}

	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx == -1 {
		return "", errors.ParseError(errors.CodeMissingSheet, source, 0, "sheet", sheet, err).
			WithContext("available_sheets", f.GetSheetList())
	}
	return sheet, nil
}

func (s *xlsxSource) Next() ([]string, int, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, s.line, errors.FileError(errors.CodeFileCorrupted, s.sheet, err)
		}
		return nil, 0, io.EOF
	}
	s.line++

	// Raw values keep amounts free of display formatting such as
	// thousands separators.
	cols, err := s.rows.Columns(excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, s.line, errors.ParseError(errors.CodeInvalidFormat, s.sheet, s.line, "", "", err)
	}
	return cols, s.line, nil
}

func (s *xlsxSource) Close() error {
	if err := s.rows.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
