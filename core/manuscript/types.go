// Package manuscript defines the change-tracked document model: sections,
// content items, change blocks, detection severities, and the policy
// thresholds that decide what gets cleaned. The parser, serializer,
// workflow engine, and exporters all share these types.
package manuscript

import (
	"fmt"
	"time"

	"github.com/softcover/bowdler/core/errors"
)

// FormatVersion identifies a generation of the BWD grammar.
type FormatVersion int

// Format generation constants.
const (
	// FormatLegacy is the first-generation grammar (ratings plus
	// needs-cleaning booleans). Accepted on read, never written.
	FormatLegacy FormatVersion = 1
	// FormatCurrent is the second-generation grammar (detection severities
	// plus workflow statuses). The serializer emits only this generation.
	FormatCurrent FormatVersion = 2
)

// IsValid returns true if the format version is a recognized generation.
func (v FormatVersion) IsValid() bool {
	return v == FormatLegacy || v == FormatCurrent
}

// Category is a content-moderation category. Cleaning passes run in the
// fixed order given by Categories: each pass reads the previous pass's
// output, so the order is part of the workflow contract.
type Category string

// Moderation category constants.
const (
	CategoryLanguage Category = "language"
	CategoryAdult    Category = "adult"
	CategoryViolence Category = "violence"
)

// Categories lists all categories in cleaning order.
var Categories = []Category{CategoryLanguage, CategoryAdult, CategoryViolence}

// IsValid returns true if the category is recognized.
func (c Category) IsValid() bool {
	switch c {
	case CategoryLanguage, CategoryAdult, CategoryViolence:
		return true
	}
	return false
}

// Severity is an immutable detection value recorded per section and
// category at first classification.
type Severity int

// Severity scale constants.
const (
	// SeverityUnrated means the section has not been classified yet.
	SeverityUnrated Severity = -1
	// SeverityNone means the classifier found nothing in this category.
	SeverityNone Severity = 0
	// SeverityMild is the lowest positive classification.
	SeverityMild Severity = 1
	// SeverityModerate is the middle classification.
	SeverityModerate Severity = 2
	// SeverityStrong is the highest classification.
	SeverityStrong Severity = 3
)

// IsValid returns true for severities on the 0..3 scale.
func (s Severity) IsValid() bool {
	return s >= SeverityNone && s <= SeverityStrong
}

// SectionStatus is the mutable per-category workflow status of a section.
type SectionStatus string

// Section workflow status constants.
const (
	// StatusUnset is the zero value before any pass has touched the section.
	StatusUnset SectionStatus = ""
	// StatusClean means no category pass ever flagged the section.
	StatusClean SectionStatus = "clean"
	// StatusPending means the section has change blocks awaiting review.
	StatusPending SectionStatus = "pending"
	// StatusReviewed means every change block has a terminal review status.
	StatusReviewed SectionStatus = "reviewed"
)

// IsValid returns true if the status is a recognized value.
func (s SectionStatus) IsValid() bool {
	switch s {
	case StatusUnset, StatusClean, StatusPending, StatusReviewed:
		return true
	}
	return false
}

// ReviewStatus is the human review decision on a change block.
type ReviewStatus string

// Change block review status constants.
const (
	// ReviewPending means no decision has been recorded.
	ReviewPending ReviewStatus = "pending"
	// ReviewAccepted means the cleaned text was approved.
	ReviewAccepted ReviewStatus = "accepted"
	// ReviewRejected means the original text stands.
	ReviewRejected ReviewStatus = "rejected"
	// ReviewManual means a human supplied their own replacement text.
	ReviewManual ReviewStatus = "manual"
)

// IsValid returns true if the review status is a recognized value.
func (r ReviewStatus) IsValid() bool {
	switch r {
	case ReviewPending, ReviewAccepted, ReviewRejected, ReviewManual:
		return true
	}
	return false
}

// Terminal returns true once a human decision has been recorded.
func (r ReviewStatus) Terminal() bool {
	return r == ReviewAccepted || r == ReviewRejected || r == ReviewManual
}

// Document is the top-level container for a book under moderation.
// It owns an ordered sequence of sections and the header fields persisted
// in the BWD file. Header fields are immutable once the first section has
// been parsed or appended; the Modified timestamp is the one exception and
// is rewritten on every save.
type Document struct {
	// Format is the grammar generation this document was loaded from.
	// In memory every document is current-generation; the field records
	// provenance only and the serializer always writes FormatCurrent.
	Format FormatVersion `json:"format"`

	// Source identifies the imported book (a path or UUID).
	Source string `json:"source"`

	// Created is the import timestamp (UTC).
	Created time.Time `json:"created"`

	// Modified is the last save timestamp (UTC). Updated by the store.
	Modified time.Time `json:"modified,omitempty"`

	// Settings holds the per-category policy thresholds.
	Settings Policy `json:"settings,omitempty"`

	// Assets is the optional folder of extracted book assets, relative to
	// the manuscript file.
	Assets string `json:"assets,omitempty"`

	// Metadata holds free-form header markers (Title, Author, and any
	// unrecognized header marker) in order of first appearance. They are
	// re-emitted verbatim, never merged into content.
	Metadata []MetaField `json:"metadata,omitempty"`

	// Sections contains all sections in document order.
	Sections []*Section `json:"sections,omitempty"`
}

// MetaField is a single free-form header marker.
type MetaField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// New creates an empty current-generation document.
func New(source string) *Document {
	return &Document{
		Format:   FormatCurrent,
		Source:   source,
		Created:  time.Now().UTC().Truncate(time.Second),
		Settings: DefaultPolicy(),
	}
}

// Section returns the section with the given sequence number, or nil.
func (d *Document) Section(seq int) *Section {
	for _, s := range d.Sections {
		if s.Seq == seq {
			return s
		}
	}
	return nil
}

// AddSection appends a section and assigns the next sequence number.
func (d *Document) AddSection(label string) *Section {
	s := &Section{
		Seq:   len(d.Sections) + 1,
		Label: label,
	}
	d.Sections = append(d.Sections, s)
	return s
}

// Meta returns the value of a free-form header field, or "".
func (d *Document) Meta(name string) string {
	for _, m := range d.Metadata {
		if m.Name == name {
			return m.Value
		}
	}
	return ""
}

// SetMeta sets a free-form header field, replacing an existing value or
// appending a new field while preserving order of first appearance.
func (d *Document) SetMeta(name, value string) {
	for i, m := range d.Metadata {
		if m.Name == name {
			d.Metadata[i].Value = value
			return
		}
	}
	d.Metadata = append(d.Metadata, MetaField{Name: name, Value: value})
}

// Section is one chapter or unit of the book. Content order is authoritative:
// items never move, and a change block occupies exactly the position its
// original text occupied.
type Section struct {
	// Seq is the 1-based sequence number within the document.
	Seq int `json:"seq"`

	// Label is the human label (e.g., "Chapter 3").
	Label string `json:"label"`

	// Title is the optional chapter title.
	Title string `json:"title,omitempty"`

	// Desc is the optional one-line generated description.
	Desc string `json:"desc,omitempty"`

	// Detection holds the immutable per-category severities. A category
	// absent from the map is unclassified. Use SetDetection; the value is
	// set exactly once and never rewritten.
	Detection map[Category]Severity `json:"detection,omitempty"`

	// Status holds the mutable per-category workflow statuses. Use
	// SetStatus; transitions are monotonic.
	Status map[Category]SectionStatus `json:"status,omitempty"`

	// Items contains the section content in document order.
	Items []*ContentItem `json:"items,omitempty"`
}

// DetectionFor returns the recorded severity for a category, or
// SeverityUnrated if the section has not been classified for it.
func (s *Section) DetectionFor(c Category) Severity {
	if sev, ok := s.Detection[c]; ok {
		return sev
	}
	return SeverityUnrated
}

// SetDetection records a detection severity. Severities are written exactly
// once, at first classification; a second write is an invariant violation.
func (s *Section) SetDetection(c Category, sev Severity) error {
	if !c.IsValid() {
		return errors.NewInvariant("SetDetection", fmt.Sprintf("unknown category %q", c))
	}
	if !sev.IsValid() {
		return errors.NewInvariant("SetDetection", fmt.Sprintf("severity %d out of range", sev))
	}
	if _, ok := s.Detection[c]; ok {
		return errors.NewInvariant("SetDetection",
			fmt.Sprintf("section %d already classified for %s", s.Seq, c))
	}
	if s.Detection == nil {
		s.Detection = make(map[Category]Severity)
	}
	s.Detection[c] = sev
	return nil
}

// StatusFor returns the workflow status for a category.
func (s *Section) StatusFor(c Category) SectionStatus {
	return s.Status[c]
}

// SetStatus moves the workflow status for a category. Allowed transitions:
// unset -> clean|pending, pending -> pending|reviewed, and any state to
// itself. Anything backward is an invariant violation.
func (s *Section) SetStatus(c Category, st SectionStatus) error {
	if !c.IsValid() {
		return errors.NewInvariant("SetStatus", fmt.Sprintf("unknown category %q", c))
	}
	if !st.IsValid() || st == StatusUnset {
		return errors.NewInvariant("SetStatus", fmt.Sprintf("invalid target status %q", st))
	}
	cur := s.Status[c]
	if cur == st {
		return nil
	}
	switch cur {
	case StatusUnset:
		// clean or pending both start a lifecycle
	case StatusPending:
		if st == StatusClean {
			return errors.NewInvariant("SetStatus",
				fmt.Sprintf("section %d %s: pending cannot move to clean", s.Seq, c))
		}
	case StatusClean, StatusReviewed:
		return errors.NewInvariant("SetStatus",
			fmt.Sprintf("section %d %s: %s is terminal, cannot move to %s", s.Seq, c, cur, st))
	}
	if s.Status == nil {
		s.Status = make(map[Category]SectionStatus)
	}
	s.Status[c] = st
	return nil
}

// AddText appends a plain text item.
func (s *Section) AddText(text string) *ContentItem {
	item := &ContentItem{Kind: ItemText, Text: text}
	s.Items = append(s.Items, item)
	return item
}

// AddImage appends an image reference item.
func (s *Section) AddImage(path, caption string) *ContentItem {
	item := &ContentItem{Kind: ItemImage, Image: &ImageRef{Path: path, Caption: caption}}
	s.Items = append(s.Items, item)
	return item
}

// AddChange appends an already-built change block as a new item.
func (s *Section) AddChange(b *ChangeBlock) *ContentItem {
	item := &ContentItem{Kind: ItemChange, Change: b}
	s.Items = append(s.Items, item)
	return item
}

// Block returns the change block with the given ID, or nil.
func (s *Section) Block(id string) *ChangeBlock {
	for _, item := range s.Items {
		if item.Kind == ItemChange && item.Change.ID == id {
			return item.Change
		}
	}
	return nil
}

// Blocks returns all change blocks in content order.
func (s *Section) Blocks() []*ChangeBlock {
	var blocks []*ChangeBlock
	for _, item := range s.Items {
		if item.Kind == ItemChange {
			blocks = append(blocks, item.Change)
		}
	}
	return blocks
}

// NextBlockID returns an ID unused by any block in this section. IDs are
// small decimal strings; once assigned they are stable across
// re-serialization.
func (s *Section) NextBlockID() string {
	max := 0
	for _, b := range s.Blocks() {
		var n int
		if _, err := fmt.Sscanf(b.ID, "%d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%d", max+1)
}

// AllReviewed returns true if the section has at least one change block and
// every block carries a terminal review status.
func (s *Section) AllReviewed() bool {
	blocks := s.Blocks()
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks {
		if !b.Status.Terminal() {
			return false
		}
	}
	return true
}

// ItemKind discriminates the content item union.
type ItemKind int

// Content item kinds.
const (
	// ItemText is a plain text paragraph.
	ItemText ItemKind = iota
	// ItemChange is a change block.
	ItemChange
	// ItemImage is an image reference with caption.
	ItemImage
)

// ContentItem is one positional unit of section content: plain text, a
// change block, or an image reference. Exactly one of Text, Change, Image
// is meaningful, selected by Kind.
type ContentItem struct {
	Kind   ItemKind     `json:"kind"`
	Text   string       `json:"text,omitempty"`
	Change *ChangeBlock `json:"change,omitempty"`
	Image  *ImageRef    `json:"image,omitempty"`
}

// ImageRef is an image reference with its caption.
type ImageRef struct {
	Path    string `json:"path"`
	Caption string `json:"caption,omitempty"`
}

// ChangeBlock pairs an immutable original text with a working cleaned copy
// and a human review decision. The original is sealed at creation; the
// cleaned text is replaced wholesale by each applicable category pass. An
// empty cleaned text is a valid state and means deletion.
type ChangeBlock struct {
	// ID is unique within the owning section and stable across
	// re-serialization.
	ID string `json:"id"`

	// Status is the review decision.
	Status ReviewStatus `json:"status"`

	// CleanedFor lists the categories whose passes have run on this block,
	// in cleaning order.
	CleanedFor []Category `json:"cleaned_for,omitempty"`

	// Original is the flagged text as it appeared in the book. Never
	// rewritten after creation.
	Original string `json:"original"`

	// Cleaned is the working copy. Starts as a copy of Original.
	Cleaned string `json:"cleaned"`
}

// NewChangeBlock creates a pending block whose cleaned text starts as a
// copy of the original.
func NewChangeBlock(id, original string) *ChangeBlock {
	return &ChangeBlock{
		ID:       id,
		Status:   ReviewPending,
		Original: original,
		Cleaned:  original,
	}
}

// Applied returns true if the given category pass has run on this block.
func (b *ChangeBlock) Applied(c Category) bool {
	for _, a := range b.CleanedFor {
		if a == c {
			return true
		}
	}
	return false
}

// MarkApplied records that a category pass ran on this block. Recording the
// same category twice is a no-op.
func (b *ChangeBlock) MarkApplied(c Category) {
	if !b.Applied(c) {
		b.CleanedFor = append(b.CleanedFor, c)
	}
}

// ReplaceCleaned replaces the working cleaned text. Only pending blocks may
// be rewritten by the engine; once a review decision is terminal, the block
// is immutable except through EditManual.
func (b *ChangeBlock) ReplaceCleaned(text string) error {
	if b.Status.Terminal() {
		return errors.NewInvariant("ReplaceCleaned",
			fmt.Sprintf("block %s has terminal status %s", b.ID, b.Status))
	}
	b.Cleaned = text
	return nil
}

// Review records a human decision. A pending block may move to any terminal
// status; a terminal block may only move to manual (a further manual edit).
func (b *ChangeBlock) Review(decision ReviewStatus) error {
	if !decision.Terminal() {
		return errors.NewInvariant("Review",
			fmt.Sprintf("block %s: %q is not a terminal decision", b.ID, decision))
	}
	if b.Status.Terminal() && decision != ReviewManual {
		return errors.NewInvariant("Review",
			fmt.Sprintf("block %s already reviewed as %s", b.ID, b.Status))
	}
	b.Status = decision
	return nil
}

// EditManual replaces the cleaned text with a human-supplied replacement
// and sets the status to manual. Valid in any state.
func (b *ChangeBlock) EditManual(text string) error {
	b.Cleaned = text
	b.Status = ReviewManual
	return nil
}
