package bwd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/softcover/bowdler/core/manuscript"
)

// Serialize renders a document in the current BWD generation. Output is
// canonical: field order is fixed, content items are emitted in document
// order, and change blocks expand from their current field values, so
// serializing the same document twice yields byte-identical output.
// Status markers are emitted only for pending and reviewed categories to
// keep diffs quiet; clean and unset categories serialize to nothing.
func Serialize(w io.Writer, d *manuscript.Document) error {
	sw := &stringWriter{w: w}

	sw.marker(markerFormat, fmt.Sprintf("%d", manuscript.FormatCurrent))
	sw.marker(markerSource, d.Source)
	sw.marker(markerCreated, d.Created.UTC().Format(time.RFC3339))
	if !d.Modified.IsZero() {
		sw.marker(markerModified, d.Modified.UTC().Format(time.RFC3339))
	}
	if s := d.Settings.String(); s != "" {
		sw.marker(markerSettings, s)
	}
	if d.Assets != "" {
		sw.marker(markerAssets, d.Assets)
	}
	for _, m := range d.Metadata {
		sw.marker(m.Name, m.Value)
	}

	for _, sec := range d.Sections {
		writeSection(sw, sec)
	}
	return sw.err
}

// SerializeBytes renders a document to a byte slice.
func SerializeBytes(d *manuscript.Document) ([]byte, error) {
	var sb strings.Builder
	if err := Serialize(&sb, d); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func writeSection(sw *stringWriter, sec *manuscript.Section) {
	sw.marker(markerSection, fmt.Sprintf("%d", sec.Seq))
	if sec.Label != "" {
		sw.marker(markerLabel, sec.Label)
	}
	if sec.Title != "" {
		sw.marker(markerTitle, sec.Title)
	}
	if sec.Desc != "" {
		sw.marker(markerDesc, sec.Desc)
	}

	// Detection severities, then workflow statuses, both in category order.
	for _, c := range manuscript.Categories {
		if sev := sec.DetectionFor(c); sev != manuscript.SeverityUnrated {
			sw.marker(categoryMarker(c), fmt.Sprintf("%d", sev))
		}
	}
	for _, c := range manuscript.Categories {
		st := sec.StatusFor(c)
		if st == manuscript.StatusPending || st == manuscript.StatusReviewed {
			sw.marker(categoryMarker(c)+statusSuffix, string(st))
		}
	}

	for _, item := range sec.Items {
		switch item.Kind {
		case manuscript.ItemText:
			sw.content(item.Text)
		case manuscript.ItemImage:
			value := item.Image.Path
			if item.Image.Caption != "" {
				value += "|" + item.Image.Caption
			}
			sw.marker(markerImage, value)
		case manuscript.ItemChange:
			writeChange(sw, item.Change)
		}
	}
}

func writeChange(sw *stringWriter, b *manuscript.ChangeBlock) {
	sw.marker(markerChange, b.ID)
	sw.marker(markerChangeStatus, string(b.Status))
	if len(b.CleanedFor) > 0 {
		parts := make([]string, len(b.CleanedFor))
		for i, c := range b.CleanedFor {
			parts[i] = string(c)
		}
		sw.marker(markerCleanedFor, strings.Join(parts, ","))
	}
	sw.bare(markerOriginal)
	sw.body(b.Original)
	sw.bare(markerCleaned)
	sw.body(b.Cleaned)
	sw.bare(markerEnd)
}

// stringWriter accumulates output and the first write error.
type stringWriter struct {
	w   io.Writer
	err error
}

func (sw *stringWriter) line(s string) {
	if sw.err != nil {
		return
	}
	_, sw.err = io.WriteString(sw.w, s+"\n")
}

func (sw *stringWriter) marker(name, value string) {
	if value == "" {
		sw.bare(name)
		return
	}
	sw.line("#" + name + ": " + value)
}

func (sw *stringWriter) bare(name string) {
	sw.line("#" + name)
}

// content writes one content item, splitting embedded newlines into
// separate escaped lines.
func (sw *stringWriter) content(text string) {
	for _, l := range strings.Split(text, "\n") {
		sw.line(Escape(l))
	}
}

// body writes a change block body: empty text contributes no lines, which
// is how deletion round-trips.
func (sw *stringWriter) body(text string) {
	if text == "" {
		return
	}
	for _, l := range strings.Split(text, "\n") {
		sw.line(Escape(l))
	}
}
