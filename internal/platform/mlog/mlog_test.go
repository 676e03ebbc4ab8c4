package mlog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerpush/chally/internal/platform/mlog"
)

type recordingLogger struct {
	mlog.NoneLogger
	infos []string
}

func (r *recordingLogger) Info(args ...any) {
	for _, a := range args {
		if s, ok := a.(string); ok {
			r.infos = append(r.infos, s)
		}
	}
}

func TestFromContext_ReturnsNoneLoggerWhenAbsent(t *testing.T) {
	logger := mlog.FromContext(context.Background())
	assert.IsType(t, &mlog.NoneLogger{}, logger)
	assert.NoError(t, logger.Sync())
}

func TestContextWithLogger_RoundTrip(t *testing.T) {
	rec := &recordingLogger{}
	ctx := mlog.ContextWithLogger(context.Background(), rec)

	got := mlog.FromContext(ctx)
	got.Info("hello")
	assert.Equal(t, []string{"hello"}, rec.infos)
}

func TestNoneLogger_WithFieldsReturnsSelf(t *testing.T) {
	l := &mlog.NoneLogger{}
	assert.Equal(t, l, l.WithFields("key", "value"))
}

func TestNewZapLogger_BuildsForBothEnvironments(t *testing.T) {
	dev, err := mlog.NewZapLogger("development")
	require.NoError(t, err)
	dev.Info("hello")
	assert.NotNil(t, dev.WithFields("request_id", "abc"))

	prod, err := mlog.NewZapLogger("production")
	require.NoError(t, err)
	prod.Infof("user %s", "alice")
}
