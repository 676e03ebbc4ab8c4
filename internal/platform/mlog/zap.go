package mlog

import "go.uber.org/zap"

// ZapLogger is the production Logger implementation, backed by
// go.uber.org/zap's SugaredLogger, matching the teacher's mzap wrapper.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a ZapLogger for environment (one of "production",
// "development"); production uses JSON encoding, development uses a
// human-readable console encoder.
func NewZapLogger(environment string) (*ZapLogger, error) {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{sugar: logger.Sugar()}, nil
}

func (l *ZapLogger) Info(args ...any)           { l.sugar.Info(args...) }
func (l *ZapLogger) Infof(f string, args ...any) { l.sugar.Infof(f, args...) }
func (l *ZapLogger) Warn(args ...any)           { l.sugar.Warn(args...) }
func (l *ZapLogger) Warnf(f string, args ...any) { l.sugar.Warnf(f, args...) }
func (l *ZapLogger) Error(args ...any)          { l.sugar.Error(args...) }
func (l *ZapLogger) Errorf(f string, args ...any) { l.sugar.Errorf(f, args...) }
func (l *ZapLogger) Debug(args ...any)          { l.sugar.Debug(args...) }
func (l *ZapLogger) Debugf(f string, args ...any) { l.sugar.Debugf(f, args...) }

func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(fields...)}
}

func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
