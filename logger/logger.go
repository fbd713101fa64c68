// Package logger contains the structured logging abstraction used by
// every component of the module.
//
// Components accept an optional Logger: a nil Logger is valid and discards
// every entry, so use the package-level helpers (Debug, Info, Error) instead
// of calling the interface methods directly.
package logger

// Field represents a structured field to be added to a Log entry.
type Field struct {
	Key   string
	Value interface{}
}

// With is an helper function to add a field in a functional way.
func With(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err adds the provided error as the "error" field of a Log entry.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Logger is a structured logger capable of printing information about
// the execution of a component at various levels.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Debug delegates the debug log call to the provided logger, if not nil.
func Debug(l Logger, msg string, fields ...Field) {
	if l != nil {
		l.Debug(msg, fields...)
	}
}

// Info delegates the info log call to the provided logger, if not nil.
func Info(l Logger, msg string, fields ...Field) {
	if l != nil {
		l.Info(msg, fields...)
	}
}

// Error delegates the error log call to the provided logger, if not nil.
func Error(l Logger, msg string, fields ...Field) {
	if l != nil {
		l.Error(msg, fields...)
	}
}

// Named returns a Logger that adds the provided fields to every entry.
// It returns nil if the provided Logger is nil.
func Named(l Logger, fields ...Field) Logger {
	if l == nil {
		return nil
	}

	return scoped{inner: l, fields: fields}
}

type scoped struct {
	inner  Logger
	fields []Field
}

func (s scoped) with(fields []Field) []Field {
	all := make([]Field, 0, len(s.fields)+len(fields))
	all = append(all, s.fields...)

	return append(all, fields...)
}

func (s scoped) Debug(msg string, fields ...Field) { s.inner.Debug(msg, s.with(fields)...) }

func (s scoped) Info(msg string, fields ...Field) { s.inner.Info(msg, s.with(fields)...) }

func (s scoped) Error(msg string, fields ...Field) { s.inner.Error(msg, s.with(fields)...) }
