// Package drawlog records values served to the inference binary so they can
// be replayed, tailed and analysed later.
package drawlog

import (
	"context"
	"errors"
	"time"
)

// Draw is one value handed to a client.
type Draw struct {
	Time   time.Time
	Value  float64
	Origin string
}

// Sink receives draws.
type Sink interface {
	Record(ctx context.Context, d Draw) error
	Close() error
}

// Fanout forwards every draw to all sinks.
type Fanout []Sink

// Record writes d to every sink and joins their errors.
func (f Fanout) Record(ctx context.Context, d Draw) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
