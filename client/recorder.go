package client

import (
	"context"
	"time"
)

// CallRecord summarizes one logical call. It never contains credentials or bodies.
type CallRecord struct {
	RequestID string
	Method    string
	Path      string
	Status    int
	Kind      ErrorKind
	Attempts  int
	Duration  time.Duration
	At        time.Time
}

// Recorder receives a CallRecord after every logical call, successful or not.
type Recorder interface {
	Record(ctx context.Context, rec CallRecord) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, rec CallRecord) error

func (f RecorderFunc) Record(ctx context.Context, rec CallRecord) error { return f(ctx, rec) }
