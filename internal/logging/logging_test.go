package logging

import (
	"testing"
)

func TestInitLogger(t *testing.T) {
	levels := []Level{LevelDebug, LevelInfo, LevelWarn, LevelError, Level(99)}
	formats := []Format{FormatJSON, FormatText}
	for _, l := range levels {
		for _, f := range formats {
			InitLogger(l, f)
			if GetLogger() == nil {
				t.Fatalf("logger nil after InitLogger(%d, %d)", l, f)
			}
		}
	}
}

func TestHelpersDoNotPanic(t *testing.T) {
	InitLogger(LevelError, FormatText) // quiet output during tests
	Debug("debug", "k", "v")
	Info("info")
	Warn("warn", "n", 1)
	Error("error")
	OracleFailure(1, "c1", "language", errTest{})
	Checkpoint("book.bwd", 1024, "pass", "language")
}

type errTest struct{}

func (errTest) Error() string { return "test error" }
