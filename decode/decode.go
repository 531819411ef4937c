// Package decode parses raw subprocess output into a structured result
// according to the format the caller requested. The format is always
// supplied explicitly, never inferred, so the tolerance for sloppy
// script output lives in one place.
//
// Three formats are supported:
//   - structured-json: a single JSON document on stdout, with a
//     fallback that tolerates diagnostic lines printed around the
//     payload (the last line that parses as JSON wins);
//   - delimited-text: a header row plus data rows, producing ordered
//     row mappings keyed by the header;
//   - raw-text: stdout verbatim, trimmed of trailing whitespace.
package decode

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Format selects how subprocess stdout is decoded.
type Format string

// Supported output formats.
const (
	FormatJSON      Format = "structured-json"
	FormatDelimited Format = "delimited-text"
	FormatRaw       Format = "raw-text"
)

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatDelimited, FormatRaw:
		return true
	}
	return false
}

// ErrUnparseable is returned when stdout cannot be decoded in the
// requested format. It distinguishes "script's output was malformed"
// from "script said no" (a non-zero exit), which callers handle
// differently.
var ErrUnparseable = errors.New("unparseable output")

// Decode parses stdout in the requested format. It returns the decoded
// payload and any non-fatal warnings (e.g. delimited rows dropped for
// a mismatched field count).
func Decode(stdout string, format Format, delimiter rune) (payload any, warnings []string, err error) {
	switch format {
	case FormatJSON:
		payload, err = decodeJSON(stdout)
		return payload, nil, err
	case FormatDelimited:
		return decodeDelimited(stdout, delimiter)
	case FormatRaw:
		return strings.TrimRight(stdout, " \t\r\n"), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown output format %q", format)
	}
}

// decodeJSON parses stdout as one JSON document. Scripts sometimes
// print informational text before (or after) the payload, so on a
// whole-document parse failure it scans line by line from the end for
// the last line that parses as JSON.
func decodeJSON(stdout string) (any, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty stdout", ErrUnparseable)
	}

	var payload any
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		return payload, nil
	}

	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if err := json.Unmarshal([]byte(line), &payload); err == nil {
			return payload, nil
		}
	}

	return nil, fmt.Errorf("%w: no line of stdout parses as JSON", ErrUnparseable)
}

// decodeDelimited parses stdout as a header row plus data rows. Each
// data row becomes a mapping keyed by the header fields, in row order.
// A row whose field count differs from the header is dropped and
// reported as a warning, not a hard failure.
func decodeDelimited(stdout string, delimiter rune) (any, []string, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("%w: empty stdout", ErrUnparseable)
	}

	reader := csv.NewReader(strings.NewReader(trimmed))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1 // field count mismatches are handled below

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: no header row", ErrUnparseable)
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	var warnings []string

	for i, record := range records[1:] {
		if len(record) != len(header) {
			warnings = append(warnings, fmt.Sprintf(
				"row %d dropped: %d fields, header has %d", i+1, len(record), len(header)))
			continue
		}
		row := make(map[string]string, len(header))
		for j, field := range header {
			row[field] = record[j]
		}
		rows = append(rows, row)
	}

	return rows, warnings, nil
}
