package domain

import "strings"

// Record is one accepted CSV data row keyed by trimmed header name.
type Record map[string]string

// Field names read from feed rows.
const (
	FieldLng            = "lng"
	FieldLat            = "lat"
	FieldTitle          = "title"
	FieldAddress        = "address"
	FieldImage          = "img_uri"
	FieldLocalizability = "localizability"
)

// Coordinate parses the record's lng/lat fields.
func (r Record) Coordinate() Coordinate {
	return ParseCoordinate(r[FieldLng], r[FieldLat])
}

// ParserStrategy selects how feed text is split into records.
type ParserStrategy string

const (
	// ParserQuoted scans byte by byte and honors double-quoted fields.
	ParserQuoted ParserStrategy = "quoted"
	// ParserNaive splits on newlines then commas with no quote handling.
	ParserNaive ParserStrategy = "naive"
)

// ParseParserStrategy maps a config value onto a strategy, defaulting to naive.
func ParseParserStrategy(s string) ParserStrategy {
	if ParserStrategy(strings.ToLower(strings.TrimSpace(s))) == ParserQuoted {
		return ParserQuoted
	}
	return ParserNaive
}

// ParseRecords parses feed text with the given strategy. The first line is
// the header. Rows that do not fit the header are dropped, never reported.
func ParseRecords(data []byte, strategy ParserStrategy) []Record {
	if strategy == ParserQuoted {
		return RecordsFromRows(ScanQuoted(data))
	}
	return SplitNaive(string(data))
}

// ScanQuoted splits data into rows of fields. A double quote toggles the
// quoted state; commas and newlines inside quotes are kept in the field.
// Quote characters themselves are kept in field values. A trailing line
// without a terminating newline is not emitted.
func ScanQuoted(data []byte) [][]string {
	var (
		rows     [][]string
		row      []string
		field    []byte
		inQuotes bool
	)
	for _, b := range data {
		switch {
		case b == '"':
			inQuotes = !inQuotes
			field = append(field, b)
		case b == ',' && !inQuotes:
			row = append(row, string(field))
			field = field[:0]
		case b == '\n' && !inQuotes:
			row = append(row, string(field))
			rows = append(rows, row)
			field = field[:0]
			row = nil
		default:
			field = append(field, b)
		}
	}
	return rows
}

// RecordsFromRows maps scanned rows onto the header in rows[0], keeping only
// rows with the same field count.
func RecordsFromRows(rows [][]string) []Record {
	if len(rows) == 0 {
		return nil
	}
	header := trimAll(rows[0])
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if rec, ok := toRecord(header, row); ok {
			records = append(records, rec)
		}
	}
	return records
}

// SplitNaive splits text on newlines and commas. Quoted fields with embedded
// commas produce extra columns, so their rows are dropped.
func SplitNaive(text string) []Record {
	lines := strings.Split(text, "\n")
	header := trimAll(strings.Split(lines[0], ","))
	records := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if rec, ok := toRecord(header, strings.Split(line, ",")); ok {
			records = append(records, rec)
		}
	}
	return records
}

func toRecord(header, fields []string) (Record, bool) {
	if len(fields) != len(header) {
		return nil, false
	}
	rec := make(Record, len(header))
	for i, name := range header {
		rec[name] = strings.TrimSpace(fields[i])
	}
	return rec, true
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
