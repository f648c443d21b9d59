// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads command configuration from flags, an optional TOML
// config file and H10_ prefixed environment variables. Flags take precedence
// over the environment, which takes precedence over the config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kortschak/h10/pmd"
)

const (
	DefaultNamePrefix  = "Polar H10"
	DefaultScanTimeout = 30 * time.Second
	DefaultTimeout     = 5 * time.Second
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
)

// Config is the configuration of a command.
type Config struct {
	// Address is the Bluetooth address of the sensor. If empty, the
	// first sensor with a name matching Name is used.
	Address     string        `mapstructure:"address"`
	Name        string        `mapstructure:"name"`
	ScanTimeout time.Duration `mapstructure:"scan_timeout"`
	// Timeout is the PMD control point response timeout.
	Timeout time.Duration `mapstructure:"timeout"`

	Log    Log    `mapstructure:"log"`
	Record Record `mapstructure:"record"`
	MQTT   MQTT   `mapstructure:"mqtt"`
	Redis  Redis  `mapstructure:"redis"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Record is the configuration of a recording.
type Record struct {
	// Streams holds the names of the streams to record.
	Streams []string `mapstructure:"streams"`
	// Duration is the length of the recording. Zero records
	// until interrupted.
	Duration time.Duration `mapstructure:"duration"`
	// Dir is the directory CSV files are written to. If empty,
	// no CSV files are written.
	Dir string `mapstructure:"dir"`
	// AccRate and AccRange override the accelerometer sample
	// rate and range when not zero.
	AccRate  pmd.AccSampleFreq `mapstructure:"acc_rate"`
	AccRange pmd.AccRange      `mapstructure:"acc_range"`
}

// MQTT is the configuration of the MQTT sink. The sink is disabled when
// Broker is empty.
type MQTT struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      int    `mapstructure:"qos"`
}

// Redis is the configuration of the Redis stream sink. The sink is disabled
// when Addr is empty.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// Load returns the configuration for the named command from args, which
// should not include the command name. If args requests help, Load returns
// pflag.ErrHelp.
func Load(name string, args []string) (*Config, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to TOML config file (env H10_CONFIG)")
	fs.String("addr", "", "sensor bluetooth address")
	fs.String("name", DefaultNamePrefix, "sensor name prefix")
	fs.Duration("scan-timeout", DefaultScanTimeout, "time to scan for the sensor")
	fs.Duration("timeout", DefaultTimeout, "pmd control point response timeout")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn or error)")
	fs.String("log-format", DefaultLogFormat, "log format (console or json)")
	fs.StringSlice("streams", []string{"heartrate", "ecg", "acc"}, "streams to record")
	fs.Duration("duration", 0, "recording duration (0 to record until interrupted)")
	fs.String("dir", "", "directory to write CSV files to")
	fs.Uint16("acc-rate", 0, "accelerometer sample rate in Hz: 25, 50, 100 or 200 (0 for highest)")
	fs.Uint16("acc-range", 0, "accelerometer range in G: 2, 4 or 8 (0 for highest)")
	fs.String("mqtt-broker", "", "MQTT broker URL")
	fs.String("mqtt-client-id", "h10", "MQTT client id")
	fs.String("mqtt-topic", "h10", "MQTT topic prefix")
	fs.Int("mqtt-qos", 0, "MQTT quality of service")
	fs.String("redis-addr", "", "Redis address")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database")
	fs.String("redis-stream", "h10", "Redis stream key")
	fs.Int64("redis-max-len", 0, "approximate Redis stream length limit (0 for none)")
	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	for key, flag := range map[string]string{
		"config":           "config",
		"address":          "addr",
		"name":             "name",
		"scan_timeout":     "scan-timeout",
		"timeout":          "timeout",
		"log.level":        "log-level",
		"log.format":       "log-format",
		"record.streams":   "streams",
		"record.duration":  "duration",
		"record.dir":       "dir",
		"record.acc_rate":  "acc-rate",
		"record.acc_range": "acc-range",
		"mqtt.broker":      "mqtt-broker",
		"mqtt.client_id":   "mqtt-client-id",
		"mqtt.topic":       "mqtt-topic",
		"mqtt.qos":         "mqtt-qos",
		"redis.addr":       "redis-addr",
		"redis.password":   "redis-password",
		"redis.db":         "redis-db",
		"redis.stream":     "redis-stream",
		"redis.max_len":    "redis-max-len",
	} {
		err = v.BindPFlag(key, fs.Lookup(flag))
		if err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	v.SetEnvPrefix("h10")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		err = v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	err = cfg.validate()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid scan timeout: %v", c.ScanTimeout))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid timeout: %v", c.Timeout))
	}
	if c.Record.Duration < 0 {
		errs = append(errs, fmt.Errorf("invalid recording duration: %v", c.Record.Duration))
	}
	if c.Record.AccRate != 0 && !c.Record.AccRate.Valid() {
		errs = append(errs, fmt.Errorf("invalid accelerometer sample rate: %d", c.Record.AccRate))
	}
	if c.Record.AccRange != 0 && !c.Record.AccRange.Valid() {
		errs = append(errs, fmt.Errorf("invalid accelerometer range: %d", c.Record.AccRange))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %q", c.Log.Format))
	}
	if c.MQTT.QoS < 0 || 2 < c.MQTT.QoS {
		errs = append(errs, fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}
