package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/obsidianstack/liveplot/pkg/types"
)

// Source yields raw records in arrival order. Next returns io.EOF once the
// source is exhausted. An error wrapping types.ErrMalformed means the current
// record is unusable but later records may still be read.
type Source interface {
	Next() ([]string, error)
}

// CSVSource reads comma-separated records, exactly one per line. Each line is
// parsed on its own, so an unbalanced quote spoils only the line it is on.
type CSVSource struct {
	r    *bufio.Reader
	line int
}

// NewCSVSource wraps r. Records may have any number of fields and blank
// lines are skipped.
func NewCSVSource(r io.Reader) *CSVSource {
	return &CSVSource{r: bufio.NewReader(r)}
}

// Next returns the fields of the next non-blank line.
func (s *CSVSource) Next() ([]string, error) {
	for {
		text, err := s.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if text == "" && err != nil {
			return nil, io.EOF
		}
		s.line++

		text = strings.TrimRight(text, "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		return s.parse(text)
	}
}

func (s *CSVSource) parse(text string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rec, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", types.ErrMalformed, s.line, err)
	}
	return rec, nil
}
