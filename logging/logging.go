// Package logging monta o *zap.Logger do serviço e o buffer circular que
// alimenta o visualizador de logs (/logs).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New cria o logger. "production" usa JSON; qualquer outro ambiente usa o
// formato de desenvolvimento com nível colorido. Se ring não for nil, toda
// entrada também vai para ele.
func New(environment string, ring *Ring) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	opts := []zap.Option{zap.AddCaller()}
	if ring != nil {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, ring.Core(config.Level))
		}))
	}
	return config.Build(opts...)
}
