// Package export streams the results table as JSONL for backup and
// offline analysis.
package export

import (
	"encoding/json"
	"io"

	"github.com/cyberblades/historian/internal/store"
)

// Run writes every persisted result to w, one JSON object per line,
// oldest first. Returns the number of rows written.
func Run(s *store.Store, w io.Writer) (int, error) {
	results, err := s.AllResults()
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	for i, r := range results {
		if err := enc.Encode(r); err != nil {
			return i, err
		}
	}
	return len(results), nil
}
