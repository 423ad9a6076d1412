package parsers

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"wbs-auc-reconciliation/pkg/errors"
)

// Format identifies the container format of a tabular export
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// String returns the string representation of Format
func (f Format) String() string {
	return string(f)
}

// IsSpreadsheet reports whether the format is a workbook
func (f Format) IsSpreadsheet() bool {
	return f == FormatXLSX || f == FormatXLS
}

var (
	zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// DetectFormat determines the format from the leading bytes of the
// content, falling back to the file extension.
func DetectFormat(path string, head []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(head, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(head, oleMagic):
		return FormatXLS, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	}

	return "", errors.ParseError(errors.CodeInvalidFormat, path, 0, "", "",
		fmt.Errorf("unrecognized file type %q", filepath.Ext(path)))
}

// DetectFileFormat reads the first bytes of a file and detects its format
func DetectFileFormat(path string) (Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", openError(path, err)
	}
	defer file.Close()

	head := make([]byte, 8)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return DetectFormat(path, head[:n])
}

func openError(path string, err error) error {
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return errors.FileError(errors.CodeDirectoryError, path, err)
}
