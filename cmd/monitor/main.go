// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The monitor command displays heart rate, RR interval and ECG data
// from a Polar H10 sensor.
package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"sync"

	"gioui.org/app"
	"gioui.org/font/gofont"
	"gioui.org/io/event"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"gioui.org/x/explorer"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/kortschak/h10"
	"github.com/kortschak/h10/internal/config"
	"github.com/kortschak/h10/internal/forkbeard"
	"github.com/kortschak/h10/internal/logging"
)

func main() {
	cfg, err := config.Load("monitor", os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	adapter := bluetooth.DefaultAdapter
	err = adapter.Enable()
	if err != nil {
		log.Fatal("failed to enable bluetooth", zap.Error(err))
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Info("scanning", zap.String("address", cfg.Address), zap.String("name", cfg.Name))
	err = sensor.Connect(ctx)
	if err != nil {
		log.Fatal("failed to connect", zap.Error(err))
	}
	info := sensor.DeviceInformation()
	log.Info("connected",
		zap.String("name", sensor.Name()),
		zap.String("model", info.Model),
		zap.String("firmware", info.FirmwareVersion),
		zap.Stringer("features", sensor.Features()),
	)

	update := make(chan image.Image)
	m, err := newMonitor(ctx, sensor, update, log)
	if err != nil {
		sensor.Disconnect()
		log.Fatal("failed to start monitor", zap.Error(err))
	}

	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			err := m.Close()
			if err != nil {
				log.Warn("failed to stop streams", zap.Error(err))
			}
			err = sensor.Disconnect()
			if err != nil {
				log.Warn("failed to disconnect", zap.Error(err))
			}
		})
	}
	go func() {
		<-ctx.Done()
		shutdown()
		os.Exit(0)
	}()

	go func() {
		w := new(app.Window)
		w.Option(app.Title("ECG"), app.Size(296, 128))
		if err := loop(w, update); err != nil {
			log.Error("window failed", zap.Error(err))
		}
		shutdown()
		os.Exit(0)
	}()
	app.Main()
}

func loop(w *app.Window, update chan image.Image) error {
	expl := explorer.NewExplorer(w)
	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))

	events := make(chan event.Event)
	ack := make(chan struct{})

	go func() {
		for {
			ev := w.Event()
			events <- ev
			<-ack
			if _, ok := ev.(app.DestroyEvent); ok {
				return
			}
		}
	}()
	var img image.Image
	var ops op.Ops
	for {
		select {
		case img = <-update:
			w.Invalidate()
		case e := <-events:
			expl.ListenEvents(e)
			switch e := e.(type) {
			case app.DestroyEvent:
				ack <- struct{}{}
				return e.Err
			case app.FrameEvent:
				gtx := app.NewContext(&ops, e)
				layout.Flex{Axis: layout.Vertical}.Layout(gtx,
					layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
						if img == nil {
							return layout.Dimensions{}
						}
						return widget.Image{
							Src: paint.NewImageOp(img),
							Fit: widget.Contain,
						}.Layout(gtx)
					}),
				)
				e.Frame(gtx.Ops)
			}
			ack <- struct{}{}
		}
	}
}
