package bwd

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/softcover/bowdler/core/errors"
	"github.com/softcover/bowdler/core/manuscript"
)

// parserState is the explicit state of the parsing machine.
type parserState int

const (
	// stateHeader consumes document header markers.
	stateHeader parserState = iota
	// stateSection consumes section fields and content items.
	stateSection
	// stateChangeHeader consumes change block fields before the body.
	stateChangeHeader
	// stateOriginal accumulates the block's original text.
	stateOriginal
	// stateCleaned accumulates the block's cleaned text.
	stateCleaned
)

// Per-category marker tables, both generations.
var (
	detectionMarkers = map[string]manuscript.Category{}
	statusMarkers    = map[string]manuscript.Category{}
	ratingMarkers    = map[string]manuscript.Category{}
	needsMarkers     = map[string]manuscript.Category{}
)

func init() {
	for _, c := range manuscript.Categories {
		name := categoryMarker(c)
		detectionMarkers[name] = c
		statusMarkers[name+statusSuffix] = c
		ratingMarkers[name+ratingSuffix] = c
		needsMarkers[needsPrefix+name] = c
	}
}

// categoryMarker returns the capitalized marker name for a category.
func categoryMarker(c manuscript.Category) string {
	s := string(c)
	return strings.ToUpper(s[:1]) + s[1:]
}

// legacyRatings maps first-generation rating words onto the severity scale.
var legacyRatings = map[string]manuscript.Severity{
	"none":     manuscript.SeverityNone,
	"mild":     manuscript.SeverityMild,
	"moderate": manuscript.SeverityModerate,
	"strong":   manuscript.SeverityStrong,
	"extreme":  manuscript.SeverityStrong,
}

// parser drives the state machine over tokenized lines.
type parser struct {
	doc   *manuscript.Document
	sec   *manuscript.Section
	state parserState

	sawFormat bool

	// Pending change block fields, valid in the change states.
	blockID     string
	blockStatus manuscript.ReviewStatus
	cleanedFor  []manuscript.Category
	origLines   []string
	cleanLines  []string
	blockLine   int // line number of the opening Change marker
}

// Parse reads a BWD manuscript. Both grammar generations are accepted;
// legacy markers are normalized into the current model during the parse,
// so no generation branching survives past this package. A structural
// error aborts the whole load: no half-parsed document is ever returned.
func Parse(r io.Reader) (*manuscript.Document, error) {
	p := &parser{
		doc: &manuscript.Document{Settings: manuscript.DefaultPolicy()},
	}

	tok := NewTokenizer(r)
	for {
		line, ok := tok.Next()
		if !ok {
			break
		}
		if err := p.feed(line); err != nil {
			return nil, err
		}
	}
	if err := tok.Err(); err != nil {
		return nil, errors.NewIO("read", "", err)
	}
	return p.finish()
}

// ParseBytes parses a BWD manuscript held in memory.
func ParseBytes(data []byte) (*manuscript.Document, error) {
	return Parse(bytes.NewReader(data))
}

// feed advances the state machine by one line.
func (p *parser) feed(line Line) error {
	switch p.state {
	case stateHeader:
		return p.feedHeader(line)
	case stateSection:
		return p.feedSection(line)
	case stateChangeHeader:
		return p.feedChangeHeader(line)
	case stateOriginal, stateCleaned:
		return p.feedBody(line)
	}
	return errors.NewFormatf(line.Num, "parser in unknown state %d", p.state)
}

func (p *parser) feedHeader(line Line) error {
	if line.Kind == LineContent {
		return errors.NewFormat(line.Num, "content before first section")
	}

	switch line.Name {
	case markerFormat:
		v, err := strconv.Atoi(line.Value)
		if err != nil {
			return errors.NewFormatf(line.Num, "invalid format version %q", line.Value)
		}
		fv := manuscript.FormatVersion(v)
		if !fv.IsValid() {
			return errors.NewFormatf(line.Num, "unrecognized format version %d", v)
		}
		p.doc.Format = fv
		p.sawFormat = true
	case markerSource:
		p.doc.Source = line.Value
	case markerCreated:
		ts, err := time.Parse(time.RFC3339, line.Value)
		if err != nil {
			return errors.NewFormatf(line.Num, "invalid Created timestamp %q", line.Value)
		}
		p.doc.Created = ts.UTC()
	case markerModified:
		ts, err := time.Parse(time.RFC3339, line.Value)
		if err != nil {
			return errors.NewFormatf(line.Num, "invalid Modified timestamp %q", line.Value)
		}
		p.doc.Modified = ts.UTC()
	case markerSettings:
		pol, err := manuscript.ParsePolicy(line.Value)
		if err != nil {
			return errors.NewFormatf(line.Num, "invalid Settings: %v", err)
		}
		p.doc.Settings = pol
	case markerAssets:
		p.doc.Assets = line.Value
	case markerSection:
		if err := p.checkHeader(line.Num); err != nil {
			return err
		}
		return p.openSection(line)
	default:
		// Unknown header markers are tolerated and preserved verbatim as
		// opaque metadata. This is the compatibility rule: they are never
		// merged into content and never dropped.
		p.doc.Metadata = append(p.doc.Metadata, manuscript.MetaField{Name: line.Name, Value: line.Value})
	}
	return nil
}

// checkHeader verifies the structurally required header fields once the
// header is complete.
func (p *parser) checkHeader(num int) error {
	if !p.sawFormat {
		return errors.NewFormat(num, "missing required Format marker")
	}
	if p.doc.Source == "" {
		return errors.NewFormat(num, "missing required Source marker")
	}
	if p.doc.Created.IsZero() {
		return errors.NewFormat(num, "missing required Created marker")
	}
	return nil
}

// openSection closes the current section, if any, and begins a new one.
func (p *parser) openSection(line Line) error {
	seq, err := strconv.Atoi(line.Value)
	if err != nil || seq < 1 {
		return errors.NewFormatf(line.Num, "invalid section number %q", line.Value)
	}
	p.closeSection()
	p.sec = &manuscript.Section{Seq: seq}
	p.state = stateSection
	return nil
}

func (p *parser) closeSection() {
	if p.sec != nil {
		p.doc.Sections = append(p.doc.Sections, p.sec)
		p.sec = nil
	}
}

func (p *parser) feedSection(line Line) error {
	if line.Kind == LineContent {
		p.sec.AddText(line.Text)
		return nil
	}

	if c, ok := detectionMarkers[line.Name]; ok {
		return p.setDetection(line, c, line.Value)
	}
	if c, ok := statusMarkers[line.Name]; ok {
		return p.setStatus(line, c, manuscript.SectionStatus(line.Value))
	}
	if c, ok := ratingMarkers[line.Name]; ok {
		// Legacy rating scale, normalized onto severities.
		sev, ok := legacyRatings[strings.ToLower(line.Value)]
		if !ok {
			return errors.NewFormatf(line.Num, "unknown rating %q", line.Value)
		}
		return p.setDetectionValue(line, c, sev)
	}
	if c, ok := needsMarkers[line.Name]; ok {
		// Legacy needs-cleaning boolean, normalized onto statuses.
		switch strings.ToLower(line.Value) {
		case "yes", "true":
			return p.setStatus(line, c, manuscript.StatusPending)
		case "no", "false":
			return p.setStatus(line, c, manuscript.StatusClean)
		}
		return errors.NewFormatf(line.Num, "invalid %s value %q", line.Name, line.Value)
	}

	switch line.Name {
	case markerSection:
		return p.openSection(line)
	case markerLabel:
		p.sec.Label = line.Value
	case markerTitle:
		p.sec.Title = line.Value
	case markerDesc:
		p.sec.Desc = line.Value
	case markerImage:
		path, caption, _ := strings.Cut(line.Value, "|")
		if path == "" {
			return errors.NewFormat(line.Num, "image reference with empty path")
		}
		p.sec.AddImage(path, caption)
	case markerChange, legacyBlock:
		return p.openChange(line)
	case markerCleaned, legacyNow:
		return errors.NewFormat(line.Num, "Cleaned marker before any Original")
	case markerOriginal, legacyWas:
		return errors.NewFormat(line.Num, "Original marker outside a change block")
	case markerEnd, legacyEndBlock:
		return errors.NewFormat(line.Num, "End with no open change block")
	default:
		return errors.NewFormatf(line.Num, "unrecognized marker #%s in section", line.Name)
	}
	return nil
}

func (p *parser) setDetection(line Line, c manuscript.Category, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return errors.NewFormatf(line.Num, "invalid %s severity %q", line.Name, value)
	}
	return p.setDetectionValue(line, c, manuscript.Severity(n))
}

func (p *parser) setDetectionValue(line Line, c manuscript.Category, sev manuscript.Severity) error {
	if err := p.sec.SetDetection(c, sev); err != nil {
		return errors.NewFormatf(line.Num, "%v", err)
	}
	return nil
}

func (p *parser) setStatus(line Line, c manuscript.Category, st manuscript.SectionStatus) error {
	if !st.IsValid() || st == manuscript.StatusUnset {
		return errors.NewFormatf(line.Num, "invalid status %q", line.Value)
	}
	if p.sec.Status == nil {
		p.sec.Status = make(map[manuscript.Category]manuscript.SectionStatus)
	}
	if _, dup := p.sec.Status[c]; dup {
		return errors.NewFormatf(line.Num, "duplicate status marker for %s", c)
	}
	p.sec.Status[c] = st
	return nil
}

func (p *parser) openChange(line Line) error {
	if line.Value == "" {
		return errors.NewFormat(line.Num, "change block with empty ID")
	}
	if p.sec.Block(line.Value) != nil {
		return errors.NewFormatf(line.Num, "duplicate change block ID %s", line.Value)
	}
	p.blockID = line.Value
	p.blockStatus = manuscript.ReviewPending
	p.cleanedFor = nil
	p.origLines = nil
	p.cleanLines = nil
	p.blockLine = line.Num
	p.state = stateChangeHeader
	return nil
}

func (p *parser) feedChangeHeader(line Line) error {
	if line.Kind == LineContent {
		return errors.NewFormat(line.Num, "content line inside change block header")
	}

	switch line.Name {
	case markerChangeStatus:
		st := manuscript.ReviewStatus(line.Value)
		if !st.IsValid() {
			return errors.NewFormatf(line.Num, "invalid change status %q", line.Value)
		}
		p.blockStatus = st
	case legacyKeep:
		// Legacy review decision, normalized onto review statuses.
		switch strings.ToLower(line.Value) {
		case "yes", "true":
			p.blockStatus = manuscript.ReviewAccepted
		case "no", "false":
			p.blockStatus = manuscript.ReviewRejected
		default:
			return errors.NewFormatf(line.Num, "invalid Keep value %q", line.Value)
		}
	case markerCleanedFor:
		for _, part := range strings.Split(line.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			c := manuscript.Category(part)
			if !c.IsValid() {
				return errors.NewFormatf(line.Num, "unknown category %q in CleanedFor", part)
			}
			p.cleanedFor = append(p.cleanedFor, c)
		}
	case markerOriginal, legacyWas:
		p.state = stateOriginal
	case markerCleaned, legacyNow:
		return errors.NewFormat(line.Num, "Cleaned marker before any Original")
	case markerEnd, legacyEndBlock:
		return errors.NewFormat(line.Num, "End before the block's Original text")
	default:
		return errors.NewFormatf(line.Num, "unrecognized marker #%s in change block", line.Name)
	}
	return nil
}

func (p *parser) feedBody(line Line) error {
	if line.Kind == LineContent {
		if p.state == stateOriginal {
			p.origLines = append(p.origLines, line.Text)
		} else {
			p.cleanLines = append(p.cleanLines, line.Text)
		}
		return nil
	}

	switch line.Name {
	case markerCleaned, legacyNow:
		if p.state != stateOriginal {
			return errors.NewFormat(line.Num, "duplicate Cleaned marker")
		}
		p.state = stateCleaned
	case markerEnd, legacyEndBlock:
		if p.state != stateCleaned {
			return errors.NewFormat(line.Num, "End before the block's Cleaned text")
		}
		p.closeChange()
	case markerOriginal, legacyWas:
		return errors.NewFormat(line.Num, "duplicate Original marker")
	default:
		return errors.NewFormatf(line.Num, "unrecognized marker #%s inside change block body", line.Name)
	}
	return nil
}

// closeChange attaches the accumulated block to the section and returns to
// section state.
func (p *parser) closeChange() {
	block := &manuscript.ChangeBlock{
		ID:         p.blockID,
		Status:     p.blockStatus,
		CleanedFor: p.cleanedFor,
		Original:   strings.Join(p.origLines, "\n"),
		Cleaned:    strings.Join(p.cleanLines, "\n"),
	}
	p.sec.AddChange(block)
	p.state = stateSection
}

// finish validates terminal state and returns the document.
func (p *parser) finish() (*manuscript.Document, error) {
	switch p.state {
	case stateChangeHeader, stateOriginal, stateCleaned:
		return nil, errors.NewFormatf(p.blockLine, "unterminated change block %s", p.blockID)
	case stateHeader:
		if err := p.checkHeader(1); err != nil {
			return nil, err
		}
	}
	p.closeSection()
	return p.doc, nil
}
