package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
)

// MarkdownWriter renders the session as a Markdown document suitable for
// documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write renders the full session in Markdown format.
func (w *MarkdownWriter) Write(session *Session) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, session)
	w.writeSummary(md, session)
	w.writeAttempts(md, session)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the session framing table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, session *Session) {
	md.H1("Identity Rotation Report")
	md.PlainText("")

	requested := "unlimited"
	if session.Requested > 0 {
		requested = strconv.Itoa(session.Requested)
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", session.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", session.Duration().Round(time.Second).String()},
			{"Interval", session.Interval.String()},
			{"Rotations Requested", requested},
			{"Status", w.statusText(session)},
		},
	})
	md.PlainText("")
}

// statusText summarizes how the session ended.
func (w *MarkdownWriter) statusText(session *Session) string {
	if session.Cancelled {
		return "⚠️ Interrupted (partial results)"
	}
	return "✅ Complete"
}

// writeSummary writes the tallies and an outcome alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, session *Session) {
	md.H2("Summary")
	md.PlainText("")

	finalAddr := "unknown"
	if !session.FinalAddress.IsZero() {
		finalAddr = "`" + session.FinalAddress.String() + "`"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"🟢 Successful rotations", strconv.Itoa(session.Successes)},
			{"🔴 Failed rotations", strconv.Itoa(session.Failures)},
			{"**Total**", "**" + strconv.Itoa(len(session.Attempts)) + "**"},
			{"Final address", finalAddr},
		},
	})
	md.PlainText("")

	switch {
	case len(session.Attempts) == 0:
		md.Note("No rotation attempts were performed.")
	case session.Successes == 0:
		md.Cautionf(
			"No rotation succeeded in %d attempt(s). Check that the Tor service is running and restartable.",
			len(session.Attempts),
		)
	case session.Failures > 0:
		md.Warningf(
			"%d of %d rotation(s) failed. The exit address may have stayed stable on some ticks.",
			session.Failures, len(session.Attempts),
		)
	default:
		md.Tip("Every rotation produced a new exit address.")
	}
	md.PlainText("")
}

// writeAttempts writes the per-tick table.
func (w *MarkdownWriter) writeAttempts(md *markdown.Markdown, session *Session) {
	md.H2("Attempts")
	md.PlainText("")

	if len(session.Attempts) == 0 {
		md.PlainText("No attempts recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(session.Attempts))
	for i, a := range session.Attempts {
		oldAddr := a.OldAddress.String()
		if oldAddr == "" {
			oldAddr = "-"
		}
		newAddr := a.NewAddress.String()
		if newAddr == "" {
			newAddr = "-"
		}
		strategy := a.Strategy
		if strategy == "" {
			strategy = "-"
		}

		rows[i] = []string{
			strconv.Itoa(i + 1),
			a.StartedAt.Format("15:04:05"),
			oldAddr,
			newAddr,
			a.OutcomeText,
			strategy,
			strconv.Itoa(a.Retries),
			a.Elapsed.Round(time.Millisecond).String(),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"#", "Time", "Old Address", "New Address", "Outcome", "Strategy", "Probes", "Elapsed"},
		Rows:   rows,
	})
	md.PlainText("")

	// Failure reasons go below the table so it stays scannable.
	for i, a := range session.Attempts {
		if a.Err != "" {
			md.Details("Attempt "+strconv.Itoa(i+1)+" failure detail", a.Err)
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [AnonymityEngine](https://github.com/zioerenkl/AnonymityEngine)*")
}
