package wesviz

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/sirupsen/logrus"
)

// ParquetParser loads a whole Parquet file through Arrow. Column names come
// from the schema, so ParseOptions.Header is ignored. Null values are left out
// of the row.
type ParquetParser struct {
	allocator memory.Allocator
	logger    logrus.FieldLogger
}

func NewParquetParser() *ParquetParser {
	return &ParquetParser{
		allocator: memory.NewGoAllocator(),
		logger:    logrus.WithField("tag", "ParquetParser"),
	}
}

func (p *ParquetParser) Parse(ctx context.Context, src Source, opts ParseOptions) (ParseResults, error) {
	input, err := src.Open()
	if err != nil {
		return ParseResults{}, err
	}
	defer input.Close()

	// The parquet reader needs random access.
	content, err := io.ReadAll(input)
	if err != nil {
		return ParseResults{}, err
	}

	pf, err := file.NewParquetReader(bytes.NewReader(content))
	if err != nil {
		return ParseResults{}, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, p.allocator)
	if err != nil {
		return ParseResults{}, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return ParseResults{}, fmt.Errorf("failed to read parquet data: %w", err)
	}
	defer table.Release()

	numRows := int(table.NumRows())
	results := ParseResults{
		Data: make([]Row, numRows),
	}
	for i := range results.Data {
		results.Data[i] = Row{}
	}

	for _, field := range table.Schema().Fields() {
		results.Meta.Fields = append(results.Meta.Fields, field.Name)
	}

	for j := 0; j < int(table.NumCols()); j++ {
		column := table.Column(j)
		name := column.Name()

		offset := 0
		for _, chunk := range column.Data().Chunks() {
			for k := 0; k < chunk.Len(); k++ {
				if chunk.IsNull(k) {
					continue
				}
				results.Data[offset+k][name] = chunk.ValueStr(k)
			}
			offset += chunk.Len()
		}
	}

	p.logger.WithFields(logrus.Fields{
		"source":  src.Name(),
		"rows":    numRows,
		"columns": len(results.Meta.Fields),
	}).Debug("parsed parquet file")

	return results, nil
}
