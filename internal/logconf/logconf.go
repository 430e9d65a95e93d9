// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logconf holds the logging configuration block shared by all binaries.
package logconf

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// LogConf describes the Logging-configuration block.
type LogConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// Formatter for the configured Format.
func (conf LogConf) Formatter() (log.Formatter, error) {
	switch conf.Format {
	case "", "text":
		return &log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		}, nil

	case "json":
		return &log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		}, nil

	default:
		return nil, fmt.Errorf("unknown logging format %q", conf.Format)
	}
}

// Apply this configuration to the logrus standard logger. Invalid values are reported, but do not prevent startup.
func (conf LogConf) Apply() {
	conf.ApplyTo(log.StandardLogger())
}

// ApplyTo configures the given logger.
func (conf LogConf) ApplyTo(logger *log.Logger) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			logger.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			logger.SetLevel(lvl)
		}
	}

	logger.SetReportCaller(conf.ReportCaller)

	if formatter, err := conf.Formatter(); err != nil {
		logger.WithError(err).Warn("Unknown logging format")
	} else {
		logger.SetFormatter(formatter)
	}
}
