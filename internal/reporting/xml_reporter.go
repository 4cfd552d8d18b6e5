package reporting

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// XMLReporter writes the report as an XML document, for CI systems that
// collect XML artifacts next to their test results.
type XMLReporter struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

func NewXMLReporter(w io.WriteCloser) *XMLReporter {
	return &XMLReporter{w: w, now: time.Now}
}

func (r *XMLReporter) Write(st locator.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := buildXML(NewReport(st, r.now()))
	if _, err := doc.WriteTo(r.w); err != nil {
		return fmt.Errorf("failed to write healing report: %w", err)
	}
	return nil
}

func (r *XMLReporter) Close() error {
	return r.w.Close()
}

func buildXML(rep Report) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("healingReport")
	root.CreateAttr("generatedAt", rep.GeneratedAt.Format(time.RFC3339))
	root.CreateAttr("healedCount", strconv.Itoa(rep.HealedCount))
	root.CreateAttr("autoUpdate", strconv.FormatBool(rep.AutoUpdateEnabled))
	root.CreateAttr("learning", strconv.FormatBool(rep.LearningEnabled))

	for _, l := range rep.Locators {
		el := root.CreateElement("locator")
		el.CreateAttr("key", l.Key)
		el.CreateAttr("strategy", l.Strategy)
		el.CreateAttr("origin", l.Origin)
		el.CreateAttr("index", strconv.Itoa(l.Index))
		el.CreateAttr("wasOriginal", strconv.FormatBool(l.WasOriginal))
		el.CreateAttr("resolvedAt", l.ResolvedAt.Format(time.RFC3339))
		el.CreateElement("value").SetText(l.Locator)

		hist := el.CreateElement("history")
		for _, h := range l.History {
			hist.CreateElement("value").SetText(h)
		}
	}

	doc.Indent(2)
	return doc
}
