package manuscript

import (
	"testing"

	"github.com/softcover/bowdler/core/errors"
)

func TestSetDetectionOnce(t *testing.T) {
	s := &Section{Seq: 1, Label: "Chapter 1"}

	if err := s.SetDetection(CategoryLanguage, SeverityModerate); err != nil {
		t.Fatalf("first SetDetection failed: %v", err)
	}
	if got := s.DetectionFor(CategoryLanguage); got != SeverityModerate {
		t.Errorf("DetectionFor = %d, want %d", got, SeverityModerate)
	}

	err := s.SetDetection(CategoryLanguage, SeverityStrong)
	if err == nil {
		t.Fatal("second SetDetection should fail")
	}
	if !errors.Is(err, errors.ErrInvariant) {
		t.Errorf("expected ErrInvariant, got %v", err)
	}
	if got := s.DetectionFor(CategoryLanguage); got != SeverityModerate {
		t.Errorf("severity changed after rejected write: %d", got)
	}
}

func TestDetectionForUnrated(t *testing.T) {
	s := &Section{Seq: 1}
	if got := s.DetectionFor(CategoryAdult); got != SeverityUnrated {
		t.Errorf("DetectionFor on unclassified section = %d, want %d", got, SeverityUnrated)
	}
}

func TestSetStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    SectionStatus
		to      SectionStatus
		wantErr bool
	}{
		{"unset to clean", StatusUnset, StatusClean, false},
		{"unset to pending", StatusUnset, StatusPending, false},
		{"pending to reviewed", StatusPending, StatusReviewed, false},
		{"pending to pending", StatusPending, StatusPending, false},
		{"pending to clean", StatusPending, StatusClean, true},
		{"reviewed to pending", StatusReviewed, StatusPending, true},
		{"clean to pending", StatusClean, StatusPending, true},
		{"reviewed to reviewed", StatusReviewed, StatusReviewed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Section{Seq: 1}
			if tt.from != StatusUnset {
				s.Status = map[Category]SectionStatus{CategoryLanguage: tt.from}
			}
			err := s.SetStatus(CategoryLanguage, tt.to)
			if tt.wantErr && err == nil {
				t.Errorf("SetStatus(%s -> %s) should fail", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("SetStatus(%s -> %s) failed: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestSetStatusRejectsUnset(t *testing.T) {
	s := &Section{Seq: 1}
	if err := s.SetStatus(CategoryLanguage, StatusUnset); err == nil {
		t.Error("SetStatus to the unset state should fail")
	}
}

func TestNewChangeBlock(t *testing.T) {
	b := NewChangeBlock("1", "damn the torpedoes")
	if b.Status != ReviewPending {
		t.Errorf("new block status = %s, want pending", b.Status)
	}
	if b.Cleaned != b.Original {
		t.Error("cleaned text should start as a copy of original")
	}
	if len(b.CleanedFor) != 0 {
		t.Error("new block should have no applied categories")
	}
}

func TestReplaceCleanedSealedAfterReview(t *testing.T) {
	b := NewChangeBlock("1", "original")
	if err := b.ReplaceCleaned("darn the torpedoes"); err != nil {
		t.Fatalf("ReplaceCleaned on pending block failed: %v", err)
	}
	if err := b.Review(ReviewAccepted); err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	err := b.ReplaceCleaned("another rewrite")
	if err == nil {
		t.Fatal("ReplaceCleaned after terminal review should fail")
	}
	if !errors.Is(err, errors.ErrInvariant) {
		t.Errorf("expected ErrInvariant, got %v", err)
	}
	if b.Cleaned != "darn the torpedoes" {
		t.Errorf("cleaned text changed after rejected write: %q", b.Cleaned)
	}
	if b.Original != "original" {
		t.Errorf("original text changed: %q", b.Original)
	}
}

func TestReplaceCleanedEmptyIsDeletion(t *testing.T) {
	b := NewChangeBlock("1", "offensive paragraph")
	if err := b.ReplaceCleaned(""); err != nil {
		t.Fatalf("ReplaceCleaned to empty failed: %v", err)
	}
	if b.Cleaned != "" {
		t.Errorf("Cleaned = %q, want empty", b.Cleaned)
	}
}

func TestReviewTransitions(t *testing.T) {
	b := NewChangeBlock("1", "text")
	if err := b.Review(ReviewPending); err == nil {
		t.Error("Review(pending) should fail: not a decision")
	}
	if err := b.Review(ReviewRejected); err != nil {
		t.Fatalf("Review(rejected) failed: %v", err)
	}
	if err := b.Review(ReviewAccepted); err == nil {
		t.Error("re-reviewing a terminal block as accepted should fail")
	}
	// A manual edit is the one allowed follow-up to a terminal decision.
	if err := b.Review(ReviewManual); err != nil {
		t.Errorf("Review(manual) on terminal block failed: %v", err)
	}
}

func TestEditManual(t *testing.T) {
	b := NewChangeBlock("1", "text")
	if err := b.Review(ReviewAccepted); err != nil {
		t.Fatal(err)
	}
	if err := b.EditManual("hand-written replacement"); err != nil {
		t.Fatalf("EditManual failed: %v", err)
	}
	if b.Status != ReviewManual {
		t.Errorf("status after EditManual = %s, want manual", b.Status)
	}
	if b.Cleaned != "hand-written replacement" {
		t.Errorf("cleaned after EditManual = %q", b.Cleaned)
	}
}

func TestMarkApplied(t *testing.T) {
	b := NewChangeBlock("1", "text")
	b.MarkApplied(CategoryLanguage)
	b.MarkApplied(CategoryLanguage)
	if len(b.CleanedFor) != 1 {
		t.Errorf("CleanedFor = %v, want exactly one entry", b.CleanedFor)
	}
	if !b.Applied(CategoryLanguage) {
		t.Error("Applied(language) = false after MarkApplied")
	}
	if b.Applied(CategoryViolence) {
		t.Error("Applied(violence) = true, never marked")
	}
}

func TestNextBlockID(t *testing.T) {
	s := &Section{Seq: 1}
	if id := s.NextBlockID(); id != "1" {
		t.Errorf("NextBlockID on empty section = %q, want 1", id)
	}
	s.AddChange(NewChangeBlock("1", "a"))
	s.AddChange(NewChangeBlock("3", "b"))
	if id := s.NextBlockID(); id != "4" {
		t.Errorf("NextBlockID = %q, want 4", id)
	}
}

func TestAllReviewed(t *testing.T) {
	s := &Section{Seq: 1}
	if s.AllReviewed() {
		t.Error("section with no blocks should not report all-reviewed")
	}
	b1 := NewChangeBlock("1", "a")
	b2 := NewChangeBlock("2", "b")
	s.AddChange(b1)
	s.AddChange(b2)
	if s.AllReviewed() {
		t.Error("pending blocks should not report all-reviewed")
	}
	if err := b1.Review(ReviewAccepted); err != nil {
		t.Fatal(err)
	}
	if s.AllReviewed() {
		t.Error("one pending block remains")
	}
	if err := b2.Review(ReviewRejected); err != nil {
		t.Fatal(err)
	}
	if !s.AllReviewed() {
		t.Error("all blocks terminal, want all-reviewed")
	}
}

func TestDocumentSectionLookup(t *testing.T) {
	d := New("test-book")
	s1 := d.AddSection("Chapter 1")
	s2 := d.AddSection("Chapter 2")
	if s1.Seq != 1 || s2.Seq != 2 {
		t.Errorf("sequence numbers = %d, %d, want 1, 2", s1.Seq, s2.Seq)
	}
	if d.Section(2) != s2 {
		t.Error("Section(2) did not return second section")
	}
	if d.Section(9) != nil {
		t.Error("Section(9) should be nil")
	}
}

func TestMetadataOrderPreserved(t *testing.T) {
	d := New("test-book")
	d.SetMeta("Title", "Moby-Dick")
	d.SetMeta("Author", "Herman Melville")
	d.SetMeta("Title", "Moby-Dick; or, The Whale")

	if len(d.Metadata) != 2 {
		t.Fatalf("Metadata length = %d, want 2", len(d.Metadata))
	}
	if d.Metadata[0].Name != "Title" {
		t.Errorf("first metadata field = %s, want Title", d.Metadata[0].Name)
	}
	if d.Meta("Title") != "Moby-Dick; or, The Whale" {
		t.Errorf("Meta(Title) = %q", d.Meta("Title"))
	}
	if d.Meta("Publisher") != "" {
		t.Errorf("Meta(Publisher) = %q, want empty", d.Meta("Publisher"))
	}
}
