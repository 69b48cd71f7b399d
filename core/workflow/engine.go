// Package workflow drives the multi-pass cleaning engine over a manuscript.
//
// One pass applies one category to every flagged section, in the fixed
// order language, adult, violence: later passes read the output of earlier
// passes, never the original. The engine checkpoints the document after
// each completed pass, so a crash at any point leaves the persisted file
// reflecting exactly the passes that finished.
package workflow

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/softcover/bowdler/core/errors"
	"github.com/softcover/bowdler/core/manuscript"
	"github.com/softcover/bowdler/internal/logging"
)

// Request is one rewriting-oracle invocation: a single text span, one
// category, one policy level, plus bounded surrounding context.
type Request struct {
	// Text is the span to rewrite: a block's current cleaned text, or a
	// plain paragraph not yet covered by a block.
	Text string
	// Category is the cleaning category of this pass.
	Category manuscript.Category
	// Level is the policy threshold the rewrite must satisfy.
	Level manuscript.Level
	// Context is surrounding prose to anchor the rewrite, already trimmed
	// to the context budget.
	Context string
}

// Rewriter is the external rewriting oracle. On failure the engine leaves
// the span unchanged; the oracle owns its own retry behavior, not the
// engine. Returning the input text unchanged means "nothing to clean".
type Rewriter interface {
	Rewrite(ctx context.Context, req Request) (string, error)
}

// RewriterFunc adapts a function to the Rewriter interface.
type RewriterFunc func(ctx context.Context, req Request) (string, error)

// Rewrite calls f.
func (f RewriterFunc) Rewrite(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Checkpointer persists the document between passes. The store package
// provides the file-backed implementation.
type Checkpointer interface {
	Checkpoint(doc *manuscript.Document) error
}

// CheckpointerFunc adapts a function to the Checkpointer interface.
type CheckpointerFunc func(doc *manuscript.Document) error

// Checkpoint calls f.
func (f CheckpointerFunc) Checkpoint(doc *manuscript.Document) error {
	return f(doc)
}

// contextBudget caps the surrounding prose handed to the oracle.
const contextBudget = 500

// Engine applies cleaning passes to a document. It owns the document for
// the duration of a run; concurrent readers must reload from the
// checkpointed file instead of sharing the handle.
type Engine struct {
	rewriter   Rewriter
	checkpoint Checkpointer
}

// New creates an engine. checkpoint may be nil, in which case passes run
// without persistence (useful in tests only; production runs always
// checkpoint).
func New(rewriter Rewriter, checkpoint Checkpointer) *Engine {
	return &Engine{rewriter: rewriter, checkpoint: checkpoint}
}

// PassReport summarizes one category pass.
type PassReport struct {
	Category        manuscript.Category `json:"category"`
	FlaggedSections int                 `json:"flagged_sections"`
	BlocksCreated   int                 `json:"blocks_created"`
	BlocksUpdated   int                 `json:"blocks_updated"`
	BlocksSkipped   int                 `json:"blocks_skipped"`
	// Failures holds the per-block oracle errors. A failed block keeps its
	// cleaned text and stays eligible for a later run; sibling blocks are
	// unaffected.
	Failures []error `json:"-"`
}

// Report summarizes a full run.
type Report struct {
	Passes []*PassReport `json:"passes"`
}

// Failures returns all oracle failures across passes.
func (r *Report) Failures() []error {
	var out []error
	for _, p := range r.Passes {
		out = append(out, p.Failures...)
	}
	return out
}

// Run applies every category pass in cleaning order, checkpointing after
// each completed pass before starting the next. Oracle failures are
// collected in the report and do not abort the run; a checkpoint failure
// does.
func (e *Engine) Run(ctx context.Context, doc *manuscript.Document) (*Report, error) {
	report := &Report{}
	for _, c := range manuscript.Categories {
		if err := ctx.Err(); err != nil {
			// Cancellation between passes loses no completed work: the last
			// checkpoint already holds every finished pass.
			return report, err
		}
		pass, err := e.RunPass(ctx, doc, c)
		if err != nil {
			return report, err
		}
		report.Passes = append(report.Passes, pass)
	}
	return report, nil
}

// RunPass applies a single category pass to every section and checkpoints
// the result. A category at the most permissive policy level is a no-op
// and creates nothing.
func (e *Engine) RunPass(ctx context.Context, doc *manuscript.Document, c manuscript.Category) (*PassReport, error) {
	report := &PassReport{Category: c}

	if doc.Settings.PassThrough(c) {
		logging.Debug("pass skipped", "category", c, "reason", "policy level off")
		return report, nil
	}

	for _, sec := range doc.Sections {
		if err := e.runSection(ctx, doc, sec, c, report); err != nil {
			return report, err
		}
	}

	if e.checkpoint != nil {
		if err := e.checkpoint.Checkpoint(doc); err != nil {
			return report, errors.Wrapf(err, "checkpointing after %s pass", c)
		}
	}
	logging.Info("pass complete", "category", c,
		"flagged_sections", report.FlaggedSections,
		"blocks_created", report.BlocksCreated,
		"blocks_updated", report.BlocksUpdated,
		"failures", len(report.Failures))
	return report, nil
}

func (e *Engine) runSection(ctx context.Context, doc *manuscript.Document, sec *manuscript.Section, c manuscript.Category, report *PassReport) error {
	sev := sec.DetectionFor(c)
	if !doc.Settings.Flagged(c, sev) {
		// Classified and under threshold: the category never flagged this
		// section, so its lifecycle for the category is clean.
		if sev != manuscript.SeverityUnrated && sec.StatusFor(c) == manuscript.StatusUnset {
			if err := sec.SetStatus(c, manuscript.StatusClean); err != nil {
				return err
			}
		}
		return nil
	}

	switch sec.StatusFor(c) {
	case manuscript.StatusReviewed:
		// Review already closed this category; never reopen it.
		return nil
	case manuscript.StatusClean:
		// A previous, more permissive policy marked this clean. Status is
		// monotonic, so a stricter re-run does not reopen the section.
		return nil
	}

	report.FlaggedSections++
	if err := sec.SetStatus(c, manuscript.StatusPending); err != nil {
		return err
	}

	for i, item := range sec.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch item.Kind {
		case manuscript.ItemChange:
			e.passBlock(ctx, doc, sec, item.Change, c, report)
		case manuscript.ItemText:
			e.passText(ctx, doc, sec, i, c, report)
		}
	}
	return nil
}

// passBlock reruns the pass on an existing change block: the oracle reads
// the current cleaned text, so this pass operates on the output of every
// earlier pass.
func (e *Engine) passBlock(ctx context.Context, doc *manuscript.Document, sec *manuscript.Section, b *manuscript.ChangeBlock, c manuscript.Category, report *PassReport) {
	if b.Applied(c) || b.Status.Terminal() {
		report.BlocksSkipped++
		return
	}

	result, err := e.rewriter.Rewrite(ctx, Request{
		Text:     b.Cleaned,
		Category: c,
		Level:    doc.Settings.LevelFor(c),
		Context:  blockContext(sec, b.ID),
	})
	if err != nil {
		report.Failures = append(report.Failures, errors.NewOracle(sec.Seq, b.ID, string(c), err))
		return
	}
	if result != b.Cleaned {
		if err := b.ReplaceCleaned(result); err != nil {
			report.Failures = append(report.Failures, err)
			return
		}
		report.BlocksUpdated++
	}
	b.MarkApplied(c)
}

// passText runs the pass on a plain paragraph. A paragraph the oracle
// leaves untouched stays plain text; a rewritten paragraph is promoted in
// place to a change block, and the live copy of the original moves inside
// the block (exactly-once storage).
func (e *Engine) passText(ctx context.Context, doc *manuscript.Document, sec *manuscript.Section, idx int, c manuscript.Category, report *PassReport) {
	item := sec.Items[idx]
	if strings.TrimSpace(item.Text) == "" {
		return
	}

	result, err := e.rewriter.Rewrite(ctx, Request{
		Text:     item.Text,
		Category: c,
		Level:    doc.Settings.LevelFor(c),
		Context:  itemContext(sec, idx),
	})
	if err != nil {
		report.Failures = append(report.Failures, errors.NewOracle(sec.Seq, "", string(c), err))
		return
	}
	if result == item.Text {
		return
	}

	b := manuscript.NewChangeBlock(sec.NextBlockID(), item.Text)
	if err := b.ReplaceCleaned(result); err != nil {
		report.Failures = append(report.Failures, err)
		return
	}
	b.MarkApplied(c)

	item.Kind = manuscript.ItemChange
	item.Change = b
	item.Text = ""
	report.BlocksCreated++
}

// itemContext returns the nearest preceding prose, trimmed to the budget.
func itemContext(sec *manuscript.Section, idx int) string {
	for i := idx - 1; i >= 0; i-- {
		item := sec.Items[i]
		var text string
		switch item.Kind {
		case manuscript.ItemText:
			text = item.Text
		case manuscript.ItemChange:
			text = item.Change.Cleaned
		}
		if strings.TrimSpace(text) != "" {
			return trimContext(text)
		}
	}
	return ""
}

// blockContext returns the preceding prose for a block identified by ID.
func blockContext(sec *manuscript.Section, id string) string {
	for i, item := range sec.Items {
		if item.Kind == manuscript.ItemChange && item.Change.ID == id {
			return itemContext(sec, i)
		}
	}
	return ""
}

func trimContext(s string) string {
	if len(s) <= contextBudget {
		return s
	}
	i := len(s) - contextBudget
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
