// Package bwd implements the BWD manuscript format: a line-oriented,
// diff-friendly text format carrying a book's text together with its
// embedded change-tracking history.
//
// Grammar: a line starting with an unescaped '#' is a marker, either
// "#NAME" or "#NAME: value". Every other line is content. A leading "\#"
// encodes a literal line starting with '#'; a leading "\\#" encodes a
// literal line starting with "\#". Unescaping touches only the single
// leading occurrence.
//
// The package accepts two grammar generations on read (see parser.go) and
// writes only the current generation (see serializer.go).
package bwd

import (
	"bufio"
	"io"
	"strings"
)

// LineKind classifies a tokenized line.
type LineKind int

// Tokenized line kinds.
const (
	// LineContent is a plain (already unescaped) content line.
	LineContent LineKind = iota
	// LineMarker is a "#NAME" or "#NAME: value" marker line.
	LineMarker
)

// Line is one classified input line.
type Line struct {
	// Num is the 1-based line number in the input.
	Num int
	// Kind discriminates marker from content.
	Kind LineKind
	// Name is the marker name (Kind == LineMarker).
	Name string
	// Value is the marker value, "" for bare markers.
	Value string
	// Text is the unescaped content text (Kind == LineContent).
	Text string
}

// Tokenizer lazily classifies input lines. It is total: any byte sequence
// tokenizes without error; structural validation happens in the parser.
type Tokenizer struct {
	scanner *bufio.Scanner
	num     int
}

// NewTokenizer creates a tokenizer over r.
func NewTokenizer(r io.Reader) *Tokenizer {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Tokenizer{scanner: sc}
}

// Next returns the next classified line. ok is false at end of input.
func (t *Tokenizer) Next() (line Line, ok bool) {
	if !t.scanner.Scan() {
		return Line{}, false
	}
	t.num++
	return classify(t.num, t.scanner.Text()), true
}

// Err returns any underlying read error.
func (t *Tokenizer) Err() error {
	return t.scanner.Err()
}

// classify turns one raw line into a tokenized Line.
func classify(num int, raw string) Line {
	if strings.HasPrefix(raw, "#") {
		name, value := splitMarker(raw)
		return Line{Num: num, Kind: LineMarker, Name: name, Value: value}
	}
	return Line{Num: num, Kind: LineContent, Text: Unescape(raw)}
}

// splitMarker splits "#NAME: value" into name and value. A bare "#NAME"
// has an empty value.
func splitMarker(raw string) (name, value string) {
	rest := strings.TrimPrefix(raw, "#")
	if i := strings.Index(rest, ":"); i >= 0 {
		return rest[:i], strings.TrimPrefix(rest[i+1:], " ")
	}
	return rest, ""
}

// Escape encodes a content line for the wire: lines that would read as
// markers or as escape sequences get one more leading backslash.
func Escape(s string) string {
	if isEscapable(s) {
		return `\` + s
	}
	return s
}

// Unescape decodes a content line: a leading backslash guarding a marker
// prefix is stripped. All other lines pass through untouched.
func Unescape(s string) string {
	if strings.HasPrefix(s, `\`) && isEscapable(s[1:]) {
		return s[1:]
	}
	return s
}

// isEscapable reports whether a line consists of zero or more backslashes
// followed by '#', i.e. a line the escaping scheme must guard.
func isEscapable(s string) bool {
	i := 0
	for i < len(s) && s[i] == '\\' {
		i++
	}
	return i < len(s) && s[i] == '#'
}
