package parsers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"wbs-auc-reconciliation/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvSource reads records from delimited text
type csvSource struct {
	reader       *csv.Reader
	source       string
	validateUTF8 bool
}

func newCSVSource(r io.Reader, source string, config *TableParserConfig) *csvSource {
	encoding := strings.ToLower(strings.TrimSpace(config.Encoding))

	reader := csv.NewReader(decodingReader(r, encoding))
	reader.Comma = config.Delimiter
	reader.FieldsPerRecord = -1 // Variable number of fields
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	return &csvSource{
		reader:       reader,
		source:       source,
		validateUTF8: config.ValidateEncoding && encoding == EncodingUTF8,
	}
}

// Charmap returns the single-byte charset of a supported encoding, or nil
// for UTF-8.
func Charmap(encoding string) *charmap.Charmap {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case EncodingLatin1:
		return charmap.ISO8859_1
	case EncodingWindows1252:
		return charmap.Windows1252
	}
	return nil
}

// decodingReader converts the input to UTF-8 and drops a leading BOM
func decodingReader(r io.Reader, encoding string) io.Reader {
	if cm := Charmap(encoding); cm != nil {
		return transform.NewReader(r, cm.NewDecoder())
	}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

func (s *csvSource) Next() ([]string, int, error) {
	record, err := s.reader.Read()
	if err == io.EOF {
		return nil, 0, io.EOF
	}
	if err != nil {
		line := 0
		var csvErr *csv.ParseError
		if stderrors.As(err, &csvErr) {
			line = csvErr.Line
		}
		return nil, line, errors.ParseError(errors.CodeInvalidFormat, s.source, line, "", "", err).
			WithSuggestion("check the delimiter and quoting of the CSV file")
	}

	line, _ := s.reader.FieldPos(0)

	if s.validateUTF8 {
		for i, field := range record {
			if !utf8.ValidString(field) {
				return nil, line, errors.ParseError(errors.CodeEncodingError, s.source, line,
					fmt.Sprintf("field_%d", i+1), "", fmt.Errorf("invalid UTF-8 encoding detected"))
			}
		}
	}

	return record, line, nil
}

// Close is a no-op; the underlying reader is owned by the caller.
func (s *csvSource) Close() error {
	return nil
}
