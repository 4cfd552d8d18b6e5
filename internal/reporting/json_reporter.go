package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// JSONReporter writes one indented JSON document per Write.
type JSONReporter struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	return &JSONReporter{w: w, now: time.Now}
}

func (r *JSONReporter) Write(st locator.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(NewReport(st, r.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal healing report: %w", err)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write healing report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.w.Close()
}
