package manuscript

import "strings"

// ImageRenderer converts an image reference into exportable text. The
// packaging collaborator supplies the real implementation; a nil renderer
// drops images from the resolved text.
type ImageRenderer func(ImageRef) string

// ResolveSection computes the effective content of a section given the
// recorded review decisions: accepted and manual blocks contribute their
// cleaned text, pending and rejected blocks their original. Item order is
// preserved; the section is never mutated.
func ResolveSection(s *Section, render ImageRenderer) string {
	var parts []string
	for _, item := range s.Items {
		switch item.Kind {
		case ItemText:
			parts = append(parts, item.Text)
		case ItemChange:
			// An empty effective text is a deletion and contributes no line.
			if text := EffectiveText(item.Change); text != "" {
				parts = append(parts, text)
			}
		case ItemImage:
			if render != nil {
				parts = append(parts, render(*item.Image))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// Resolve computes the effective content of every section in order.
func Resolve(d *Document, render ImageRenderer) []string {
	out := make([]string, len(d.Sections))
	for i, s := range d.Sections {
		out[i] = ResolveSection(s, render)
	}
	return out
}

// EffectiveText returns the text a change block contributes to the
// resolved output.
func EffectiveText(b *ChangeBlock) string {
	switch b.Status {
	case ReviewAccepted, ReviewManual:
		return b.Cleaned
	default:
		return b.Original
	}
}
