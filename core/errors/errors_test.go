package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestFormatError(t *testing.T) {
	err := NewFormat(42, "Cleaned marker before Original")
	want := "line 42: Cleaned marker before Original"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrFormat) {
		t.Error("FormatError should unwrap to ErrFormat")
	}

	err.Path = "book.bwd"
	want = "book.bwd:42: Cleaned marker before Original"
	if err.Error() != want {
		t.Errorf("Error() with path = %q, want %q", err.Error(), want)
	}
}

func TestFormatErrorWrapsUnderlying(t *testing.T) {
	inner := errors.New("bad timestamp")
	err := &FormatError{Line: 3, Message: "invalid Created value", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("FormatError should unwrap to its underlying error when set")
	}
}

func TestOracleError(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewOracle(2, "c7", "language", inner)
	want := "oracle failed for section 2 block c7 (language): connection reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, inner) {
		t.Error("OracleError should unwrap to underlying error")
	}

	var oe *OracleError
	if !errors.As(err, &oe) {
		t.Fatal("errors.As failed for OracleError")
	}
	if oe.Block != "c7" || oe.Category != "language" {
		t.Errorf("OracleError fields = %q/%q, want c7/language", oe.Block, oe.Category)
	}
}

func TestOracleErrorSentinel(t *testing.T) {
	err := &OracleError{Section: 1, Category: "adult"}
	if !errors.Is(err, ErrOracle) {
		t.Error("OracleError without underlying error should unwrap to ErrOracle")
	}
}

func TestInvariantError(t *testing.T) {
	err := NewInvariant("SetOriginal", "original text is sealed after creation")
	want := "invariant violated in SetOriginal: original text is sealed after creation"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrInvariant) {
		t.Error("InvariantError should unwrap to ErrInvariant")
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("change block", "c3")
	if err.Error() != "change block not found: c3" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should unwrap to ErrNotFound")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	inner := errors.New("inner")
	err := Wrap(inner, "loading manuscript")
	if err.Error() != "loading manuscript: inner" {
		t.Errorf("unexpected wrapped message: %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped error should match inner")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "section %d", 3) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
	inner := errors.New("inner")
	err := Wrapf(inner, "section %d", 3)
	if err.Error() != "section 3: inner" {
		t.Errorf("unexpected wrapped message: %q", err.Error())
	}
}

func TestErrorChainThroughFmt(t *testing.T) {
	base := NewFormat(7, "End with no open change block")
	wrapped := fmt.Errorf("parsing book.bwd: %w", base)

	var fe *FormatError
	if !errors.As(wrapped, &fe) {
		t.Fatal("errors.As failed through fmt.Errorf chain")
	}
	if fe.Line != 7 {
		t.Errorf("Line = %d, want 7", fe.Line)
	}
}
