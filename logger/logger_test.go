package logger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/get-eventually/go-subscribe/logger"
)

func TestNilLoggerIsDiscarded(t *testing.T) {
	assert.NotPanics(t, func() {
		logger.Debug(nil, "debug")
		logger.Info(nil, "info")
		logger.Error(nil, "error", logger.Err(errors.New("boom")))
	})

	assert.Nil(t, logger.Named(nil, logger.With("component", "test")))
}

func TestNamed(t *testing.T) {
	l := logger.NewTest(t)
	named := logger.Named(l, logger.With("component", "test"))

	logger.Info(named, "hello", logger.With("key", "value"))
	logger.Error(named, "oops")

	entries := l.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, []logger.Field{
		logger.With("component", "test"),
		logger.With("key", "value"),
	}, entries[0].Fields)
	assert.Equal(t, 1, l.Count("error"))
}
