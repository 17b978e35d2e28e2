package wesviz

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"regexp"

	"github.com/sirupsen/logrus"
)

// When Read is called, return an array of strings which are the columns. A
// *RowError means this line is unusable but reading can continue.
type StringReader interface {
	Read(context.Context) ([]string, error)
}

// This implements a StringReader and reads an io.Reader using the Golang csv
// module. This means the input data must strictly conform to CSV data. If the
// input data is not exactly CSV (for example separated by one or more spaces),
// use the RelaxedStringReader.
type CsvStringReader struct {
	input     io.Reader
	csvReader *csv.Reader

	lineCount int
}

func NewCsvStringReader(input io.Reader) *CsvStringReader {
	csvReader := csv.NewReader(input)
	// Field count mismatches are reported per row by the table builder rather
	// than failing the read.
	csvReader.FieldsPerRecord = -1

	return &CsvStringReader{
		input:     input,
		csvReader: csvReader,
		lineCount: 0,
	}
}

func (r *CsvStringReader) Read(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	line, err := r.csvReader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}

	r.lineCount++

	if err != nil {
		logger := logrus.WithFields(logrus.Fields{
			"tag":     "CsvString",
			"line":    line,
			"lineNum": r.lineCount,
		})

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			logger.WithError(err).Debug("unable to parse CSV, ignoring...")
			return nil, &RowError{
				Row:     parseErr.Line,
				Code:    RowErrorInvalidQuotes,
				Message: parseErr.Err.Error(),
			}
		}

		logger.WithError(err).Error("unable to read CSV")
		return nil, err
	}

	return line, nil
}

// This is a more relaxed reader that can split on spaces or commas. However, it
// does not follow strict CSV formatting. Handy for whitespace aligned logs.
type RelaxedStringReader struct {
	input   io.Reader
	scanner *bufio.Scanner

	lineCount int
}

func NewRelaxedStringReader(input io.Reader) *RelaxedStringReader {
	return &RelaxedStringReader{
		input:   input,
		scanner: bufio.NewScanner(input),

		lineCount: 0,
	}
}

// Split on either comma or any number of spaces or tabs
var relaxedSplitter = regexp.MustCompile("[ \t]+|,")

func (r *RelaxedStringReader) Read(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stillHasData := r.scanner.Scan()
	if !stillHasData {
		if err := r.scanner.Err(); err != nil {
			logrus.WithField("tag", "RelaxedString").WithError(err).Error("unable to read line")
			return nil, err
		}
		return nil, io.EOF
	}

	r.lineCount++
	line := r.scanner.Text()

	// Return only non-empty fields
	splittedLine := Filter(relaxedSplitter.Split(line, -1), func(value string) bool {
		return len(value) > 0
	})

	return splittedLine, nil
}

// TextParser parses line oriented text with a StringReader.
type TextParser struct {
	newReader func(io.Reader) StringReader
	logger    logrus.FieldLogger
}

func NewCsvParser() *TextParser {
	return &TextParser{
		newReader: func(r io.Reader) StringReader { return NewCsvStringReader(r) },
		logger:    logrus.WithField("tag", "CsvParser"),
	}
}

func NewRelaxedParser() *TextParser {
	return &TextParser{
		newReader: func(r io.Reader) StringReader { return NewRelaxedStringReader(r) },
		logger:    logrus.WithField("tag", "RelaxedParser"),
	}
}

func (p *TextParser) Parse(ctx context.Context, src Source, opts ParseOptions) (ParseResults, error) {
	input, err := src.Open()
	if err != nil {
		return ParseResults{}, err
	}
	defer input.Close()

	reader := p.newReader(input)
	builder := newTableBuilder(opts, true)

	for {
		line, err := reader.Read(ctx)
		if err == io.EOF {
			break
		}

		var rowErr *RowError
		if errors.As(err, &rowErr) {
			builder.addError(*rowErr)
			continue
		}

		if err != nil {
			return ParseResults{}, err
		}

		builder.add(line)
	}

	p.logger.WithFields(logrus.Fields{
		"source": src.Name(),
		"rows":   len(builder.results.Data),
		"fields": len(builder.results.Meta.Fields),
		"errors": len(builder.results.Errors),
	}).Debug("parsed source")

	return builder.results, nil
}
