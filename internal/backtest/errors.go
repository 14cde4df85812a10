package backtest

import (
	"errors"
	"fmt"
)

var (
	// ErrStrategyClassNotFound means no class inheriting from IStrategy
	// was found in the submitted source.
	ErrStrategyClassNotFound = errors.New("could not detect strategy class name inheriting from IStrategy")

	// ErrResultFileMissing means the engine exited zero but never wrote
	// its result file.
	ErrResultFileMissing = errors.New("backtest finished but result file not found")

	// ErrUnexpectedOutput means the result file held valid JSON of the
	// wrong shape.
	ErrUnexpectedOutput = errors.New("backtest output JSON has unexpected format (expected object)")
)

// ProcessError reports an engine invocation that exited non-zero. Stdout and
// Stderr carry the tail of each stream, already truncated.
type ProcessError struct {
	Op       string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s failed (exit=%d)\nSTDOUT:\n%s\n\nSTDERR:\n%s", e.Op, e.ExitCode, e.Stdout, e.Stderr)
}
