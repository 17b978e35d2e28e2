package wesviz

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PathRef addresses one column of one dataset: "<datasetIndex>.<columnName>".
type PathRef struct {
	Raw string

	// The text before the first ".". Kept verbatim for error messages.
	DatasetIndex string

	// Everything after the first ".", taken literally. "a.b" is a column named
	// "a.b", not a nested path.
	Column string
}

// ParsePathRef splits ref on its first ".". It never fails: whether the index
// is usable is decided by Resolve against a registry.
func ParsePathRef(ref string) PathRef {
	index, column, _ := strings.Cut(ref, ".")
	return PathRef{
		Raw:          ref,
		DatasetIndex: index,
		Column:       column,
	}
}

// DatasetNotFoundError is returned when a PathRef's dataset index does not
// name a dataset in the registry.
type DatasetNotFoundError struct {
	Ref   string
	Index string
}

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("Unable to access %s because dataset %s is not available!", e.Ref, e.Index)
}

// Resolve turns ref into one float per row of the referenced dataset, in row
// order. The only error is *DatasetNotFoundError. Cells that are missing or do
// not parse as a number become NaN. Blank cells also become NaN, not 0, so an
// empty cell draws as a gap.
func Resolve(ref string, registry *DatasetRegistry) ([]float64, error) {
	pathRef := ParsePathRef(ref)

	dataset, ok := lookupDataset(pathRef.DatasetIndex, registry)
	if !ok {
		return nil, &DatasetNotFoundError{Ref: ref, Index: pathRef.DatasetIndex}
	}

	column := make([]float64, len(dataset.Rows))
	for i, row := range dataset.Rows {
		value, present := row[pathRef.Column]
		if !present {
			column[i] = math.NaN()
			continue
		}
		column[i] = coerceNumber(value)
	}

	return column, nil
}

func lookupDataset(index string, registry *DatasetRegistry) (Dataset, bool) {
	i, err := strconv.Atoi(index)
	if err != nil || i < 0 {
		return Dataset{}, false
	}
	return registry.Get(i)
}

// coerceNumber is a best-effort conversion. Blank cells are gaps rather than
// zeros.
func coerceNumber(value string) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return math.NaN()
	}

	f, err := strconv.ParseFloat(trimmed, 64)
	if errors.Is(err, strconv.ErrRange) {
		// Overflow saturates to ±Inf, underflow to 0.
		return f
	}
	if err != nil {
		return math.NaN()
	}
	return f
}
