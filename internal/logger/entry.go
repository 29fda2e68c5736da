package logger

import (
	"context"
)

// Entry carries metric fields (duration_ms, count, collection...) for a
// single log line.
type Entry struct {
	fields Fields
}

// With creates a new Entry with the given metric fields.
// Example: logger.With(logger.Fields{"duration_ms": 12}).Info(ctx, "search done")
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// ForBuyer creates a new Entry about one buyer.
func ForBuyer(buyerID string) *Entry {
	return With(Fields{FieldBuyerID: buyerID})
}

// With adds more fields to an existing Entry.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// WithField adds a single field to the Entry.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.With(Fields{key: value})
}

// WithDuration adds a duration_ms field to the Entry.
func (e *Entry) WithDuration(ms int64) *Entry {
	return e.WithField(FieldDurationMs, ms)
}

// WithCount adds a count field to the Entry.
func (e *Entry) WithCount(count int) *Entry {
	return e.WithField(FieldCount, count)
}

// WithBuyer adds the buyer the line concerns.
func (e *Entry) WithBuyer(buyerID string) *Entry {
	return e.WithField(FieldBuyerID, buyerID)
}

// WithCollection adds the vector store collection an operation touched.
func (e *Entry) WithCollection(name string) *Entry {
	return e.WithField(FieldCollection, name)
}

// Critical flags a failure that left stored state inconsistent.
func (e *Entry) Critical() *Entry {
	return e.WithField(FieldCritical, true)
}

// WithError attaches err under logrus' standard error key.
func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", err)
}

func (e *Entry) target(ctx context.Context) *Logger {
	return FromContext(ctx).WithFields(e.fields)
}

// Debug logs at Debug level with metric fields.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).Debugf(format, args...)
}

// Info logs at Info level with metric fields.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).Infof(format, args...)
}

// Warn logs at Warn level with metric fields.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).Warnf(format, args...)
}

// Error logs at Error level with metric fields.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).Errorf(format, args...)
}
