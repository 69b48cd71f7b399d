package manuscript

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Level is a per-category policy threshold: the maximum severity the reader
// accepts. Sections whose detection severity exceeds the level are flagged
// for cleaning. LevelOff admits everything and is a guaranteed no-op.
type Level int

// Policy level constants.
const (
	// LevelStrict cleans every positive detection.
	LevelStrict Level = 0
	// LevelMild admits mild content only.
	LevelMild Level = 1
	// LevelModerate admits up to moderate content.
	LevelModerate Level = 2
	// LevelOff is the most permissive level: no cleaning at all.
	LevelOff Level = 3
)

// IsValid returns true for levels on the 0..3 scale.
func (l Level) IsValid() bool {
	return l >= LevelStrict && l <= LevelOff
}

// Policy maps each category to its threshold. Categories absent from the
// map default to LevelOff.
type Policy map[Category]Level

// DefaultPolicy returns a policy that cleans nothing.
func DefaultPolicy() Policy {
	return Policy{
		CategoryLanguage: LevelOff,
		CategoryAdult:    LevelOff,
		CategoryViolence: LevelOff,
	}
}

// LevelFor returns the threshold for a category, defaulting to LevelOff.
func (p Policy) LevelFor(c Category) Level {
	if l, ok := p[c]; ok {
		return l
	}
	return LevelOff
}

// Flagged reports whether a detection severity exceeds the threshold for
// its category. Unrated sections are never flagged.
func (p Policy) Flagged(c Category, sev Severity) bool {
	if sev <= SeverityNone {
		return false
	}
	return Severity(p.LevelFor(c)) < sev
}

// PassThrough reports whether a category is at the most permissive level.
func (p Policy) PassThrough(c Category) bool {
	return p.LevelFor(c) == LevelOff
}

// String renders the policy in the Settings marker syntax, categories in
// cleaning order. Round-trips through ParsePolicy.
func (p Policy) String() string {
	var parts []string
	for _, c := range Categories {
		if l, ok := p[c]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", c, l))
		}
	}
	return strings.Join(parts, " ")
}

// settingsGrammar is the participle grammar for the Settings marker value.
// Example: "language=1 adult=2 violence=3"
//
//nolint:govet // participle grammar tags are not standard struct tags
type settingsGrammar struct {
	Pairs []*settingPair `parser:"@@*"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type settingPair struct {
	Key   string `parser:"@Ident"`
	Value int    `parser:"'=' @Int"`
}

// settingsLexer defines the lexer for policy settings.
var settingsLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[a-z][a-z0-9_]*`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `=`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// settingsParser is the participle parser for policy settings.
var settingsParser = participle.MustBuild[settingsGrammar](
	participle.Lexer(settingsLexer),
	participle.Elide("Whitespace"),
)

// ParsePolicy parses a Settings marker value. Unknown category keys and
// out-of-range levels are errors; an empty string yields the default
// policy.
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	p := DefaultPolicy()
	if s == "" {
		return p, nil
	}

	parsed, err := settingsParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("invalid settings syntax: %q: %w", s, err)
	}

	for _, pair := range parsed.Pairs {
		c := Category(pair.Key)
		if !c.IsValid() {
			return nil, fmt.Errorf("unknown settings key %q", pair.Key)
		}
		l := Level(pair.Value)
		if !l.IsValid() {
			return nil, fmt.Errorf("settings level %d for %s out of range 0..3", pair.Value, c)
		}
		p[c] = l
	}
	return p, nil
}
