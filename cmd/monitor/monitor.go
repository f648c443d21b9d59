// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kortschak/h10"
	"github.com/kortschak/h10/cmd/internal/ring"
	"github.com/kortschak/h10/pmd"
)

type monitor struct {
	sensor *h10.Sensor
	kinds  []h10.Kind
	cancel context.CancelFunc
}

func newMonitor(ctx context.Context, sensor *h10.Sensor, update chan image.Image, log *zap.Logger) (*monitor, error) {
	card := image.NewGray(image.Rectangle{Max: image.Point{X: 296, Y: 128}})
	blank(card)

	hrStats := newHeartRate(subDrawImage(card, image.Rectangle{
		Min: image.Point{X: 0, Y: 0},
		Max: image.Point{X: 64, Y: 64},
	}))
	ecg := newECGPlot(subDrawImage(card, image.Rectangle{
		Min: image.Point{X: 0, Y: 64},
		Max: image.Point{X: 296, Y: 128},
	}))
	history := newRateHistory(time.Minute, subDrawImage(card, image.Rectangle{
		Min: image.Point{X: 64, Y: 0},
		Max: image.Point{X: 248, Y: 64},
	}))
	status := newStatus(subDrawImage(card, image.Rectangle{
		Min: image.Point{X: 248, Y: 0},
		Max: image.Point{X: 296, Y: 64},
	}))
	if level, ok := sensor.BatteryLevel(); ok {
		status.setBattery(level)
	}

	m := &monitor{sensor: sensor}

	var ok atomic.Bool
	var muECG sync.Mutex
	traceRing := ring.NewBuffer[int32](3 * pmd.ECGSampleFreq)
	ecgTick := make(chan struct{})
	hrTick := make(chan h10.HeartRate, 1)
	batTick := make(chan int, 1)
	discTick := make(chan struct{}, 1)

	register := func(k h10.Kind, h h10.Handler) error {
		timeout, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := sensor.Register(timeout, k, h, nil)
		if err != nil {
			return err
		}
		m.kinds = append(m.kinds, k)
		return nil
	}
	err := register(h10.KindDisconnect, func(h10.Data) {
		ok.Store(false)
		select {
		case discTick <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register disconnect handler: %w", err)
	}
	err = register(h10.KindBattery, func(d h10.Data) {
		select {
		case batTick <- d.(h10.BatteryLevel).Percent:
		default:
		}
	})
	if err != nil && !errors.Is(err, h10.ErrUnsupportedMeasurement) {
		m.Close()
		return nil, fmt.Errorf("failed to register battery handler: %w", err)
	}
	err = register(h10.KindECG, func(d h10.Data) {
		if !ok.Load() {
			return
		}
		muECG.Lock()
		traceRing.Write(d.(h10.ECG).Lead1)
		muECG.Unlock()
		select {
		case ecgTick <- struct{}{}:
		default:
		}
	})
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("error occurred during ecg streaming from Polar H10: %w", err)
	}
	log.Info("ecg streaming", zap.Any("settings", sensor.ActiveConfig()[h10.KindECG]))
	err = register(h10.KindHeartRate, func(d h10.Data) {
		hr := d.(h10.HeartRate)
		ok.Store(hr.Contact)
		select {
		case hrTick <- hr:
		default:
		}
	})
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to start streaming hr: %w", err)
	}

	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		hrRing := ring.NewBuffer[uint16](130)
		for {
			select {
			case <-ctx.Done():
				return
			case hr := <-hrTick:
				hrStats.add(int(hr.HR), hr.RR...)
				status.setContact(hr.ContactSupported, hr.Contact)
				hrRing.Write([]uint16{hr.HR})
				history.add(time.Now(), hrRing)
				update <- card
			case level := <-batTick:
				status.setBattery(level)
				update <- card
			case <-discTick:
				log.Warn("sensor disconnected")
				muECG.Lock()
				traceRing.Reset()
				muECG.Unlock()
				hrRing.Reset()
				status.setDisconnected()
				update <- card
			case <-ecgTick:
				muECG.Lock()
				if traceRing.Len() < ecg.width() {
					muECG.Unlock()
					continue
				}
				ecg.add(traceRing)
				muECG.Unlock()
			}
		}
	}()

	return m, nil
}

// Close stops the registered streams in reverse order of registration.
func (m *monitor) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	var errs []error
	for i := len(m.kinds) - 1; i >= 0; i-- {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := m.sensor.Remove(ctx, m.kinds[i])
		cancel()
		if err != nil && !errors.Is(err, h10.ErrNotRegistered) && !errors.Is(err, h10.ErrUnsupportedMeasurement) {
			errs = append(errs, err)
		}
	}
	m.kinds = nil
	return errors.Join(errs...)
}
