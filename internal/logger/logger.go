// Package logger builds the service's zap logger from configuration.
package logger

import (
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger, or a console development logger when
// log.development is set. log.level accepts debug, info, warn and error.
func New() (*zap.Logger, error) {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)

	level, err := zapcore.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if viper.GetBool("log.development") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build(zap.Fields(zap.String("service", "isp-ledger")))
}
