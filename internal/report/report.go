// Package report renders a finished (or in-progress) run's persisted state
// as a Markdown summary document, written to the config's summary_path.
package report

import (
	"context"
	"io"
	"sort"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/sumiripple/sumiripple/internal/classify"
	"github.com/sumiripple/sumiripple/internal/store"
)

// Writer renders summary sections to Markdown via the fluent
// nao1215/markdown builder.
type Writer struct {
	store      *store.Store
	classifier *classify.Classifier
	topN       int
}

// NewWriter builds a report Writer over an already-open store and a
// classifier wired against the run's configuration.
func NewWriter(st *store.Store, classifier *classify.Classifier) *Writer {
	return &Writer{store: st, classifier: classifier, topN: 20}
}

// Write renders the full summary document to w: overall counts, depth
// breakdown, domains by classification, top-20 blacklist/stub references,
// error histogram, and the rate-limited host list.
func (rw *Writer) Write(ctx context.Context, w io.Writer) error {
	md := markdown.NewMarkdown(w)
	md.H1("Crawl Summary")
	md.PlainText("")

	if err := rw.writeOverallCounts(ctx, md); err != nil {
		return err
	}
	if err := rw.writeDepthBreakdown(ctx, md); err != nil {
		return err
	}
	if err := rw.writeDomainsByClassification(ctx, md); err != nil {
		return err
	}
	if err := rw.writeTopReferences(ctx, md, "Top Blacklist References", rw.store.TopBlacklistReferences); err != nil {
		return err
	}
	if err := rw.writeTopReferences(ctx, md, "Top Stub References", rw.store.TopStubReferences); err != nil {
		return err
	}
	if err := rw.writeErrorHistogram(ctx, md); err != nil {
		return err
	}
	if err := rw.writeRateLimitedHosts(ctx, md); err != nil {
		return err
	}

	return md.Build()
}

func (rw *Writer) writeOverallCounts(ctx context.Context, md *markdown.Markdown) error {
	counts, err := rw.store.CountPagesByState(ctx)
	if err != nil {
		return err
	}

	md.H2("Overall Counts")
	md.PlainText("")

	total := 0
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		total += c.Count
		rows = append(rows, []string{c.State, strconv.Itoa(c.Count)})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(total) + "**"})

	md.Table(markdown.TableSet{Header: []string{"State", "Pages"}, Rows: rows})
	md.PlainText("")
	return nil
}

func (rw *Writer) writeDepthBreakdown(ctx context.Context, md *markdown.Markdown) error {
	counts, err := rw.store.CountPagesByDepth(ctx)
	if err != nil {
		return err
	}

	md.H2("Depth Breakdown")
	md.PlainText("")

	if len(counts) == 0 {
		md.PlainText("No pages with a recorded depth.")
		md.PlainText("")
		return nil
	}

	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{strconv.Itoa(c.Depth), strconv.Itoa(c.Count)})
	}
	md.Table(markdown.TableSet{Header: []string{"Depth", "Pages"}, Rows: rows})
	md.PlainText("")
	return nil
}

func (rw *Writer) writeDomainsByClassification(ctx context.Context, md *markdown.Markdown) error {
	hosts, err := rw.store.CountPagesByHost(ctx)
	if err != nil {
		return err
	}

	md.H2("Domains by Classification")
	md.PlainText("")

	byClass := map[string][]store.HostCount{}
	for _, h := range hosts {
		class := rw.classifier.Classify(h.Host).String()
		byClass[class] = append(byClass[class], h)
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	for _, class := range classes {
		md.PlainTextf("**%s**", class)
		md.PlainText("")
		rows := make([][]string, 0, len(byClass[class]))
		for _, h := range byClass[class] {
			rows = append(rows, []string{h.Host, strconv.Itoa(h.Count)})
		}
		md.Table(markdown.TableSet{Header: []string{"Host", "Pages"}, Rows: rows})
		md.PlainText("")
	}
	return nil
}

func (rw *Writer) writeTopReferences(ctx context.Context, md *markdown.Markdown, title string, load func(context.Context, int) ([]store.Reference, error)) error {
	refs, err := load(ctx, rw.topN)
	if err != nil {
		return err
	}

	md.H2(title)
	md.PlainText("")

	if len(refs) == 0 {
		md.PlainText("None.")
		md.PlainText("")
		return nil
	}

	rows := make([][]string, 0, len(refs))
	for _, r := range refs {
		rows = append(rows, []string{r.URL, strconv.Itoa(r.ReferenceCount)})
	}
	md.Table(markdown.TableSet{Header: []string{"URL", "References"}, Rows: rows})
	md.PlainText("")
	return nil
}

func (rw *Writer) writeErrorHistogram(ctx context.Context, md *markdown.Markdown) error {
	counts, err := rw.store.CountPagesByState(ctx)
	if err != nil {
		return err
	}

	md.H2("Error Histogram")
	md.PlainText("")

	var rows [][]string
	for _, c := range counts {
		if !isErrorState(c.State) {
			continue
		}
		rows = append(rows, []string{c.State, strconv.Itoa(c.Count)})
	}
	if len(rows) == 0 {
		md.PlainText("No errors recorded.")
		md.PlainText("")
		return nil
	}
	md.Table(markdown.TableSet{Header: []string{"Error State", "Pages"}, Rows: rows})
	md.PlainText("")
	return nil
}

func (rw *Writer) writeRateLimitedHosts(ctx context.Context, md *markdown.Markdown) error {
	hosts, err := rw.store.RateLimitedHosts(ctx)
	if err != nil {
		return err
	}

	md.H2("Rate-Limited Hosts")
	md.PlainText("")

	if len(hosts) == 0 {
		md.PlainText("None.")
		md.PlainText("")
		return nil
	}
	md.BulletList(hosts...)
	md.PlainText("")
	return nil
}

// isErrorState reports whether a page state represents a terminal failure
// the error histogram should surface. depth_exceeded and request_limit_hit
// are terminal skips, not errors, and are deliberately excluded.
func isErrorState(state string) bool {
	switch state {
	case "failed", "dead_link", "unreachable", "content_mismatch", "rate_limited":
		return true
	default:
		return false
	}
}
