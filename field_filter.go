package wesviz

import (
	"strings"

	"golang.org/x/text/cases"
)

// FilterFields returns the fields containing needle, compared with Unicode
// case folding. Order is preserved. An empty needle matches everything.
func FilterFields(fields []string, needle string) []string {
	// A Caser keeps state between calls, so use a fresh one per filter.
	folder := cases.Fold()
	foldedNeedle := folder.String(needle)

	return Filter(fields, func(field string) bool {
		return strings.Contains(folder.String(field), foldedNeedle)
	})
}
