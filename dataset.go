package wesviz

// A single parsed record keyed by column header. Cells may be missing.
type Row map[string]string

// Dataset is one loaded table. It is never mutated after it is appended to a
// DatasetRegistry.
type Dataset struct {
	// Name of the file the dataset came from. Empty if unknown.
	SourceName string

	// Header names in file order.
	Columns []string

	Rows []Row
}

// DatasetRegistry is an append-only list of datasets addressed by position.
// The position is what visualization inputs refer to, so datasets can never be
// removed or reordered.
//
// A registry value is a snapshot: Append returns a new registry and leaves the
// receiver untouched. The zero value (and nil) is an empty registry.
type DatasetRegistry struct {
	datasets []Dataset
}

func NewDatasetRegistry(datasets ...Dataset) *DatasetRegistry {
	r := &DatasetRegistry{}
	for _, d := range datasets {
		r = r.Append(d)
	}
	return r
}

// Append returns a registry with d added at index Len().
func (r *DatasetRegistry) Append(d Dataset) *DatasetRegistry {
	existing := r.Datasets()

	// Always copy so that older snapshots never observe the new entry through a
	// shared backing array.
	datasets := make([]Dataset, len(existing), len(existing)+1)
	copy(datasets, existing)
	datasets = append(datasets, d)

	return &DatasetRegistry{datasets: datasets}
}

func (r *DatasetRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.datasets)
}

// Get returns the dataset at index i.
func (r *DatasetRegistry) Get(i int) (Dataset, bool) {
	if i < 0 || i >= r.Len() {
		return Dataset{}, false
	}
	return r.datasets[i], true
}

func (r *DatasetRegistry) Datasets() []Dataset {
	if r == nil {
		return nil
	}
	return r.datasets
}
