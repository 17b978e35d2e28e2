package wesviz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Source is a file-like byte source selected by the user.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type fileSource struct {
	path string
}

// FileSource reads the file at path. The dataset is named after its base name.
func FileSource(path string) Source {
	return fileSource{path: path}
}

func (s fileSource) Name() string {
	return filepath.Base(s.path)
}

func (s fileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}

type bytesSource struct {
	name string
	data []byte
}

// BytesSource serves data already in memory, such as an uploaded file.
func BytesSource(name string, data []byte) Source {
	return bytesSource{name: name, data: data}
}

func (s bytesSource) Name() string {
	return s.name
}

func (s bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

type ParseOptions struct {
	// The first row names the columns. Without a header, columns are named by
	// their position ("0", "1", ...).
	Header bool

	SkipEmptyLines bool
}

var DefaultParseOptions = ParseOptions{Header: true, SkipEmptyLines: true}

// Row error codes.
const (
	RowErrorTooFewFields  = "TooFewFields"
	RowErrorTooManyFields = "TooManyFields"
	RowErrorInvalidQuotes = "InvalidQuotes"
)

// RowError is a problem with a single row. It never stops the file from being
// registered.
type RowError struct {
	// Index of the data row (header excluded), or the line number when the row
	// could not be split at all.
	Row     int
	Code    string
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Code, e.Message)
}

type ParseMeta struct {
	Fields []string
}

type ParseResults struct {
	Data   []Row
	Errors []RowError
	Meta   ParseMeta
}

// Dataset converts the results into a registry entry for a source.
func (r ParseResults) Dataset(sourceName string) Dataset {
	return Dataset{
		SourceName: sourceName,
		Columns:    r.Meta.Fields,
		Rows:       r.Data,
	}
}

// Parser turns a source into rows. A returned error means the whole file is
// unusable; row level problems go into ParseResults.Errors instead.
type Parser interface {
	Parse(ctx context.Context, src Source, opts ParseOptions) (ParseResults, error)
}

// FormatParser picks a parser by file extension. Anything it does not
// recognize is parsed as CSV.
type FormatParser struct {
	parsers map[string]Parser
	csv     Parser
	logger  logrus.FieldLogger
}

func NewFormatParser() *FormatParser {
	relaxed := NewRelaxedParser()

	return &FormatParser{
		parsers: map[string]Parser{
			".xlsx":    NewXlsxParser(),
			".parquet": NewParquetParser(),
			".txt":     relaxed,
			".dat":     relaxed,
			".tsv":     relaxed,
		},
		csv:    NewCsvParser(),
		logger: logrus.WithField("tag", "FormatParser"),
	}
}

func (p *FormatParser) Parse(ctx context.Context, src Source, opts ParseOptions) (ParseResults, error) {
	ext := strings.ToLower(filepath.Ext(src.Name()))

	parser, ok := p.parsers[ext]
	if !ok {
		parser = p.csv
	}

	p.logger.WithFields(logrus.Fields{
		"source": src.Name(),
		"parser": fmt.Sprintf("%T", parser),
	}).Debug("parsing source")

	return parser.Parse(ctx, src, opts)
}

// tableBuilder assembles rows from split lines, recording field count
// mismatches as row errors.
type tableBuilder struct {
	opts ParseOptions

	// Spreadsheets drop trailing empty cells, so short rows are not an error
	// there.
	reportShortRows bool

	results   ParseResults
	sawHeader bool
}

func newTableBuilder(opts ParseOptions, reportShortRows bool) *tableBuilder {
	return &tableBuilder{
		opts:            opts,
		reportShortRows: reportShortRows,
		results: ParseResults{
			Data: []Row{},
		},
	}
}

func (b *tableBuilder) add(line []string) {
	if b.opts.SkipEmptyLines && isEmptyLine(line) {
		return
	}

	if b.opts.Header && !b.sawHeader {
		b.sawHeader = true
		fields := make([]string, len(line))
		copy(fields, line)
		if len(fields) > 0 {
			fields[0] = strings.TrimPrefix(fields[0], "\ufeff")
		}
		b.results.Meta.Fields = fields
		return
	}

	if !b.opts.Header {
		for len(b.results.Meta.Fields) < len(line) {
			b.results.Meta.Fields = append(b.results.Meta.Fields, strconv.Itoa(len(b.results.Meta.Fields)))
		}
	}

	rowIndex := len(b.results.Data)
	fields := b.results.Meta.Fields
	row := make(Row, len(line))

	for i, value := range line {
		if i >= len(fields) {
			break
		}
		row[fields[i]] = value
	}

	switch {
	case len(line) > len(fields):
		b.addError(RowError{
			Row:     rowIndex,
			Code:    RowErrorTooManyFields,
			Message: fmt.Sprintf("expected %d fields but parsed %d", len(fields), len(line)),
		})
	case len(line) < len(fields) && b.reportShortRows && b.opts.Header:
		b.addError(RowError{
			Row:     rowIndex,
			Code:    RowErrorTooFewFields,
			Message: fmt.Sprintf("expected %d fields but parsed %d", len(fields), len(line)),
		})
	}

	b.results.Data = append(b.results.Data, row)
}

func (b *tableBuilder) addError(err RowError) {
	b.results.Errors = append(b.results.Errors, err)
}

// A line with nothing on it. A line of bare delimiters is not empty.
func isEmptyLine(line []string) bool {
	return len(line) == 0 || (len(line) == 1 && line[0] == "")
}
