// Package reporting writes healing statistics for a run.
package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// Reporter writes a healing report to an output.
type Reporter interface {
	Write(st locator.Stats) error
	// Close releases the output. Stdout is never closed.
	Close() error
}

type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("json" or "xml") writing to outputPath,
// or to stdout when outputPath is empty or "stdout".
func New(format, outputPath string) (Reporter, error) {
	switch format {
	case "json", "xml":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var w io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		w = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		w = f
	}

	if format == "xml" {
		return NewXMLReporter(w), nil
	}
	return NewJSONReporter(w), nil
}

// Report is the serialized view of locator.Stats.
type Report struct {
	GeneratedAt       time.Time       `json:"generated_at"`
	HealedCount       int             `json:"healed_count"`
	AutoUpdateEnabled bool            `json:"auto_update_enabled"`
	LearningEnabled   bool            `json:"learning_enabled"`
	Locators          []LocatorReport `json:"locators"`
}

type LocatorReport struct {
	Key         string    `json:"key"`
	Locator     string    `json:"locator"`
	Strategy    string    `json:"strategy"`
	Origin      string    `json:"origin"`
	Index       int       `json:"index"`
	WasOriginal bool      `json:"was_original"`
	ResolvedAt  time.Time `json:"resolved_at"`
	History     []string  `json:"history"`
}

// NewReport flattens st, ordering locators by key.
func NewReport(st locator.Stats, now time.Time) Report {
	r := Report{
		GeneratedAt:       now.UTC(),
		HealedCount:       st.HealedCount,
		AutoUpdateEnabled: st.AutoUpdateEnabled,
		LearningEnabled:   st.LearningEnabled,
		Locators:          make([]LocatorReport, 0, len(st.Latest)),
	}

	for key, rec := range st.Latest {
		lr := LocatorReport{
			Key:         key,
			Locator:     rec.Expression.String(),
			Strategy:    rec.Expression.Strategy.String(),
			Origin:      rec.Origin.String(),
			Index:       rec.Index,
			WasOriginal: rec.WasOriginal,
			ResolvedAt:  rec.At.UTC(),
			History:     make([]string, 0, len(st.History[key])),
		}
		for _, e := range st.History[key] {
			lr.History = append(lr.History, e.String())
		}
		r.Locators = append(r.Locators, lr)
	}
	sort.Slice(r.Locators, func(i, j int) bool { return r.Locators[i].Key < r.Locators[j].Key })
	return r
}
