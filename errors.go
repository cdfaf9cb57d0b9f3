package spritenav

import (
	"errors"
	"fmt"

	"github.com/hupe1980/spritenav/model"
	"github.com/hupe1980/spritenav/persist"
	"github.com/hupe1980/spritenav/rom"
	"github.com/hupe1980/spritenav/strategy"
)

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrNoSnapshot is returned when loading a snapshot that does not exist.
	ErrNoSnapshot = errors.New("snapshot not found")

	// ErrSnapshotCorrupt indicates a snapshot that failed integrity checks.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")

	// ErrUnknownStrategy is returned when a named strategy is not registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// SnapshotVersionError indicates a snapshot written by an incompatible
// format version. The engine falls back to an empty map when it sees one.
type SnapshotVersionError struct {
	Found     uint16
	Supported uint16
}

func (e *SnapshotVersionError) Error() string {
	return fmt.Sprintf("snapshot format version %d not supported (supported: %d)", e.Found, e.Supported)
}

// StrategyError wraps a failure (error or recovered panic) inside a
// strategy. The engine degrades to linear hints for the query and, for
// plugins, disables the strategy for the session.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type StrategyError struct {
	Name  string
	Kind  model.StrategyKind
	cause error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s failed: %v", e.Name, e.cause)
}

func (e *StrategyError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, persist.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNoSnapshot, err)
	}
	if errors.Is(err, strategy.ErrNotRegistered) {
		return fmt.Errorf("%w: %w", ErrUnknownStrategy, err)
	}

	// Location and ROM read errors pass through typed; callers match with
	// errors.As.
	var ile *model.InvalidLocationError
	if errors.As(err, &ile) {
		return err
	}
	var re *rom.ReadError
	if errors.As(err, &re) {
		return err
	}

	return err
}
