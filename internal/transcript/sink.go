package transcript

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by a sink whose destination is not set up.
var ErrNotConfigured = errors.New("transcript logger not configured")

// Sink persists transcript records. Implementations make a single attempt.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Write(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// Unconfigured returns a sink that always fails with ErrNotConfigured.
func Unconfigured(reason string) Sink {
	return SinkFunc(func(context.Context, Record) error {
		return fmt.Errorf("%w: %s", ErrNotConfigured, reason)
	})
}

// Fanout writes each record to Primary and then to every mirror. Only the
// primary's error is returned; mirror failures go to OnMirrorError.
type Fanout struct {
	Primary       Sink
	Mirrors       []Sink
	OnMirrorError func(rec Record, err error)
}

func (f *Fanout) Write(ctx context.Context, rec Record) error {
	err := f.Primary.Write(ctx, rec)
	if err != nil {
		return err
	}
	for _, m := range f.Mirrors {
		if mErr := m.Write(ctx, rec); mErr != nil && f.OnMirrorError != nil {
			f.OnMirrorError(rec, mErr)
		}
	}
	return nil
}
