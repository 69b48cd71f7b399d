package manuscript

import (
	"fmt"
)

// ValidationIssue is one problem found by Validate.
type ValidationIssue struct {
	Section int    // Section sequence number, 0 for document-level issues
	Message string
}

func (v ValidationIssue) String() string {
	if v.Section > 0 {
		return fmt.Sprintf("section %d: %s", v.Section, v.Message)
	}
	return v.Message
}

// Validate checks document-level invariants and returns all issues found.
// A nil slice means the document is well formed.
func (d *Document) Validate() []ValidationIssue {
	var issues []ValidationIssue

	if !d.Format.IsValid() {
		issues = append(issues, ValidationIssue{Message: fmt.Sprintf("unrecognized format version %d", d.Format)})
	}
	if d.Source == "" {
		issues = append(issues, ValidationIssue{Message: "missing source identifier"})
	}
	if d.Created.IsZero() {
		issues = append(issues, ValidationIssue{Message: "missing creation timestamp"})
	}

	seenSeq := make(map[int]bool)
	for _, s := range d.Sections {
		if seenSeq[s.Seq] {
			issues = append(issues, ValidationIssue{Section: s.Seq, Message: "duplicate section sequence number"})
		}
		seenSeq[s.Seq] = true
		issues = append(issues, validateSection(s)...)
	}
	return issues
}

func validateSection(s *Section) []ValidationIssue {
	var issues []ValidationIssue

	for c, sev := range s.Detection {
		if !c.IsValid() {
			issues = append(issues, ValidationIssue{Section: s.Seq, Message: fmt.Sprintf("unknown detection category %q", c)})
		}
		if !sev.IsValid() {
			issues = append(issues, ValidationIssue{Section: s.Seq, Message: fmt.Sprintf("detection severity %d for %s out of range", sev, c)})
		}
	}
	for c, st := range s.Status {
		if !c.IsValid() {
			issues = append(issues, ValidationIssue{Section: s.Seq, Message: fmt.Sprintf("unknown status category %q", c)})
		}
		if !st.IsValid() {
			issues = append(issues, ValidationIssue{Section: s.Seq, Message: fmt.Sprintf("invalid status %q for %s", st, c)})
		}
	}

	seenID := make(map[string]bool)
	for _, b := range s.Blocks() {
		if b.ID == "" {
			issues = append(issues, ValidationIssue{Section: s.Seq, Message: "change block with empty ID"})
			continue
		}
		if seenID[b.ID] {
			issues = append(issues, ValidationIssue{Section: s.Seq, Message: fmt.Sprintf("duplicate change block ID %s", b.ID)})
		}
		seenID[b.ID] = true
		if !b.Status.IsValid() {
			issues = append(issues, ValidationIssue{Section: s.Seq, Message: fmt.Sprintf("block %s: invalid review status %q", b.ID, b.Status)})
		}
		for _, c := range b.CleanedFor {
			if !c.IsValid() {
				issues = append(issues, ValidationIssue{Section: s.Seq, Message: fmt.Sprintf("block %s: unknown applied category %q", b.ID, c)})
			}
		}
	}
	return issues
}
