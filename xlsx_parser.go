package wesviz

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

var ErrNoSheets = errors.New("workbook has no sheets")

// XlsxParser reads the first sheet of a workbook. Empty cells are left out of
// the row, so they resolve to gaps like missing CSV cells.
type XlsxParser struct {
	logger logrus.FieldLogger
}

func NewXlsxParser() *XlsxParser {
	return &XlsxParser{
		logger: logrus.WithField("tag", "XlsxParser"),
	}
}

func (p *XlsxParser) Parse(ctx context.Context, src Source, opts ParseOptions) (ParseResults, error) {
	input, err := src.Open()
	if err != nil {
		return ParseResults{}, err
	}
	defer input.Close()

	f, err := excelize.OpenReader(input)
	if err != nil {
		return ParseResults{}, fmt.Errorf("invalid xlsx format: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ParseResults{}, ErrNoSheets
	}
	sheetName := sheets[0]

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return ParseResults{}, fmt.Errorf("failed to read sheet %q: %w", sheetName, err)
	}

	builder := newTableBuilder(opts, false)
	for _, cells := range rows {
		if err := ctx.Err(); err != nil {
			return ParseResults{}, err
		}
		builder.add(cells)
	}

	// GetRows returns "" for gaps inside a row; drop them so they behave as
	// absent cells.
	for _, row := range builder.results.Data {
		for k, v := range row {
			if v == "" {
				delete(row, k)
			}
		}
	}

	p.logger.WithFields(logrus.Fields{
		"source": src.Name(),
		"sheet":  sheetName,
		"rows":   len(builder.results.Data),
	}).Debug("parsed workbook")

	return builder.results, nil
}
