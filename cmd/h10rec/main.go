// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The h10rec command records heart rate, ECG and accelerometer data from
// a Polar H10 sensor to CSV files, an MQTT broker or a Redis stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/kortschak/h10"
	"github.com/kortschak/h10/internal/config"
	"github.com/kortschak/h10/internal/forkbeard"
	"github.com/kortschak/h10/internal/logging"
	"github.com/kortschak/h10/internal/publish"
)

func main() {
	os.Exit(Main())
}

func Main() int {
	cfg, err := config.Load("h10rec", os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer log.Sync()

	kinds, err := streams(cfg.Record.Streams)
	if err != nil {
		log.Error("invalid streams", zap.Error(err))
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	adapter := bluetooth.DefaultAdapter
	err = adapter.Enable()
	if err != nil {
		log.Error("failed to enable bluetooth", zap.Error(err))
		return 1
	}
	dev := forkbeard.NewDevice(adapter,
		forkbeard.WithAddress(cfg.Address),
		forkbeard.WithNamePrefix(cfg.Name),
		forkbeard.WithScanTimeout(cfg.ScanTimeout),
		forkbeard.WithLogger(log.Named("bluetooth")),
	)
	sensor := h10.New(dev,
		h10.WithLogger(log.Named("h10")),
		h10.WithTimeout(cfg.Timeout),
		h10.WithNameCheck(cfg.Name),
	)

	log.Info("scanning", zap.String("address", cfg.Address), zap.String("name", cfg.Name))
	err = sensor.Connect(ctx)
	if err != nil {
		log.Error("failed to connect", zap.Error(err))
		return 1
	}
	defer func() {
		err := sensor.Disconnect()
		if err != nil {
			log.Warn("failed to disconnect", zap.Error(err))
		}
	}()
	describe(sensor)

	sink, err := newSink(cfg, log)
	if err != nil {
		log.Error("failed to create sinks", zap.Error(err))
		return 1
	}
	async := publish.NewAsync(sink, 1024, cfg.Timeout, log.Named("publish"))
	defer func() {
		err := async.Close()
		if err != nil {
			log.Warn("failed to close sinks", zap.Error(err))
		}
		if n := async.Dropped(); n != 0 {
			log.Warn("records dropped", zap.Int("count", n))
		}
	}()

	session := uuid.New()
	log.Info("recording", zap.Stringer("session", session), zap.Duration("duration", cfg.Record.Duration))

	lost := make(chan struct{})
	err = sensor.Register(ctx, h10.KindDisconnect, func(h10.Data) { close(lost) }, nil)
	if err != nil {
		log.Error("failed to register disconnect handler", zap.Error(err))
		return 1
	}
	var registered []h10.Kind
	defer func() {
		for _, k := range registered {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
			err := sensor.Remove(ctx, k)
			cancel()
			if err != nil {
				log.Warn("failed to stop stream", zap.Stringer("kind", k), zap.Error(err))
			}
		}
	}()
	for _, k := range kinds {
		h := func(d h10.Data) {
			async.Publish(ctx, publish.NewRecord(session, d))
		}
		if k == h10.KindHeartRate {
			h = func(d h10.Data) {
				hr := d.(h10.HeartRate)
				fmt.Printf("%s HR: %d RR: %v contact: %t\n", time.Now().Format(time.TimeOnly), hr.HR, hr.RR, hr.Contact)
				async.Publish(ctx, publish.NewRecord(session, d))
			}
		}
		err = sensor.Register(ctx, k, h, overrides(k, cfg.Record))
		if err != nil {
			log.Error("failed to start stream", zap.Stringer("kind", k), zap.Error(err))
			return 1
		}
		registered = append(registered, k)
	}

	var timeout <-chan time.Time
	if cfg.Record.Duration > 0 {
		timer := time.NewTimer(cfg.Record.Duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		log.Info("interrupted")
	case <-timeout:
		log.Info("recording complete")
	case <-lost:
		log.Error("sensor disconnected")
		registered = nil
		return 1
	}
	return 0
}

// streams returns the kinds for the named streams. Only measurement
// streams may be recorded.
func streams(names []string) ([]h10.Kind, error) {
	var kinds []h10.Kind
	for _, n := range names {
		k, err := h10.ParseKind(strings.TrimSpace(n))
		if err != nil {
			return nil, err
		}
		switch k {
		case h10.KindECG, h10.KindAcc, h10.KindHeartRate, h10.KindBattery:
		default:
			return nil, fmt.Errorf("cannot record %v", k)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func describe(sensor *h10.Sensor) {
	info := sensor.DeviceInformation()
	fmt.Printf("name: %s\n", sensor.Name())
	fmt.Printf("manufacturer: %s\nmodel: %s\nserial: %s\n", info.Manufacturer, info.Model, info.SerialNumber)
	fmt.Printf("hardware: %s firmware: %s software: %s\n", info.HardwareVersion, info.FirmwareVersion, info.SoftwareVersion)
	if level, ok := sensor.BatteryLevel(); ok {
		fmt.Printf("battery: %d%%\n", level)
	}
	fmt.Printf("features: %s\n", sensor.Features())
	for k, caps := range sensor.Capabilities() {
		if len(caps) != 0 {
			fmt.Printf("%v settings: %v\n", k, caps)
		}
	}
}
