package main

import (
	"github.com/releves-ma/si-releves/internal/config"
	"github.com/releves-ma/si-releves/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
