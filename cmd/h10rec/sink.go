// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kortschak/h10"
	"github.com/kortschak/h10/internal/config"
	"github.com/kortschak/h10/internal/publish"
	"github.com/kortschak/h10/pmd"
)

var errNoSink = errors.New("no sink configured: set a directory, an mqtt broker or a redis address")

// newSink returns the sinks enabled by cfg.
func newSink(cfg *config.Config, log *zap.Logger) (publish.Sink, error) {
	var sinks publish.Multi
	if cfg.Record.Dir != "" {
		err := os.MkdirAll(cfg.Record.Dir, 0o755)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, publish.NewCSVDir(cfg.Record.Dir))
		log.Info("writing csv", zap.String("dir", cfg.Record.Dir))
	}
	if cfg.MQTT.Broker != "" {
		s, err := publish.DialMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic, byte(cfg.MQTT.QoS))
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, s)
		log.Info("publishing to mqtt", zap.String("broker", cfg.MQTT.Broker), zap.String("topic", cfg.MQTT.Topic))
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sinks = append(sinks, publish.NewRedis(client, cfg.Redis.Stream, cfg.Redis.MaxLen))
		log.Info("publishing to redis", zap.String("addr", cfg.Redis.Addr), zap.String("stream", cfg.Redis.Stream))
	}
	if len(sinks) == 0 {
		return nil, errNoSink
	}
	return sinks, nil
}

// overrides returns the setting overrides for the stream of kind k.
func overrides(k h10.Kind, cfg config.Record) pmd.Settings {
	if k != h10.KindAcc {
		return nil
	}
	var s pmd.Settings
	if cfg.AccRate != 0 {
		s = append(s, cfg.AccRate.Setting())
	}
	if cfg.AccRange != 0 {
		s = append(s, cfg.AccRange.Setting())
	}
	return s
}
