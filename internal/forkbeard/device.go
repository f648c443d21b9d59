// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package forkbeard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/kortschak/h10/gatt"
)

// PolarElectroOy is the Bluetooth SIG company identifier of Polar Electro Oy.
//
// https://bitbucket.org/bluetooth-SIG/public/src/05be78f4ef6461cce0370663adf778613a1754eb/assigned_numbers/company_identifiers/company_identifiers.yaml#lines-11148:11149
const PolarElectroOy = 0x6b

// DefaultScanTimeout is the default time to scan for a device.
const DefaultScanTimeout = 30 * time.Second

var (
	// ErrNotFound is returned by Connect when no matching device is
	// found before the scan timeout.
	ErrNotFound = errors.New("forkbeard: device not found")
	// ErrNotConnected is returned by operations that require an
	// established link.
	ErrNotConnected = errors.New("forkbeard: not connected")
)

// Device is a gatt.Transport backed by a tinygo Bluetooth adapter. The
// peripheral is found by scanning for its address or a local name prefix.
type Device struct {
	adapter     *bluetooth.Adapter
	addr        string
	prefix      string
	scanTimeout time.Duration
	log         *zap.Logger

	mu        sync.Mutex
	dev       bluetooth.Device
	name      string
	connected bool
	chars     map[gatt.ID]bluetooth.DeviceCharacteristic
	onDisc    func()
}

var _ gatt.Transport = (*Device)(nil)

// Option is a Device option.
type Option func(*Device)

// WithAddress restricts the scan to the device with the given address.
func WithAddress(addr string) Option {
	return func(d *Device) { d.addr = addr }
}

// WithNamePrefix restricts the scan to devices with a local name
// starting with prefix.
func WithNamePrefix(prefix string) Option {
	return func(d *Device) { d.prefix = prefix }
}

// WithScanTimeout sets the time to scan for the device. Non-positive
// values are ignored.
func WithScanTimeout(timeout time.Duration) Option {
	return func(d *Device) {
		if timeout > 0 {
			d.scanTimeout = timeout
		}
	}
}

// WithLogger sets the logger used by the device.
func WithLogger(log *zap.Logger) Option {
	return func(d *Device) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDevice returns a new Device using the provided adapter. The adapter
// must already be enabled.
func NewDevice(adapter *bluetooth.Adapter, opts ...Option) *Device {
	d := &Device{
		adapter:     adapter,
		scanTimeout: DefaultScanTimeout,
		log:         zap.NewNop(),
		chars:       make(map[gatt.ID]bluetooth.DeviceCharacteristic),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// matches returns whether a scanned device with the given address and
// local name is the device being searched for.
func (d *Device) matches(addr, name string) bool {
	if d.addr != "" && !strings.EqualFold(addr, d.addr) {
		return false
	}
	return strings.HasPrefix(name, d.prefix)
}

// IsPolar returns whether the scan result advertises Polar manufacturer
// data.
func IsPolar(found bluetooth.ScanResult) bool {
	return slices.ContainsFunc(found.ManufacturerData(), func(m bluetooth.ManufacturerDataElement) bool {
		return m.CompanyID == PolarElectroOy
	})
}

// Scan scans for devices, calling fn with each scan result until ctx
// is done or fn returns false.
func Scan(ctx context.Context, adapter *bluetooth.Adapter, fn func(bluetooth.ScanResult) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- adapter.Scan(func(adapter *bluetooth.Adapter, found bluetooth.ScanResult) {
			if ctx.Err() != nil {
				return
			}
			if !fn(found) {
				cancel()
			}
		})
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	err := adapter.StopScan()
	if err != nil {
		return fmt.Errorf("failed to stop scan: %w", err)
	}
	return <-errc
}

// Connect scans for the device and connects to it.
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	scanCtx, cancel := context.WithTimeout(ctx, d.scanTimeout)
	defer cancel()
	d.log.Info("scanning", zap.String("address", d.addr), zap.String("prefix", d.prefix))
	var (
		target bluetooth.ScanResult
		found  bool
	)
	err := Scan(scanCtx, d.adapter, func(r bluetooth.ScanResult) bool {
		name := r.LocalName()
		if !d.matches(r.Address.String(), name) {
			return true
		}
		d.log.Info("found device",
			zap.Stringer("address", r.Address),
			zap.Int16("rssi", r.RSSI),
			zap.String("name", name),
		)
		target, found = r, true
		return false
	})
	if err != nil {
		return fmt.Errorf("failed to scan: %w", err)
	}
	if !found {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrNotFound
	}

	d.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		if connected || dev.Address != target.Address {
			return
		}
		d.handleDisconnect()
	})
	dev, err := d.adapter.Connect(target.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", target.Address, err)
	}

	d.mu.Lock()
	d.dev = dev
	d.name = target.LocalName()
	d.connected = true
	clear(d.chars)
	d.mu.Unlock()
	d.log.Info("connected", zap.Stringer("address", target.Address))
	return nil
}

// Name returns the advertised local name of the connected device.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

func (d *Device) handleDisconnect() {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return
	}
	d.connected = false
	clear(d.chars)
	f := d.onDisc
	d.mu.Unlock()
	d.log.Warn("link lost")
	if f != nil {
		f()
	}
}

// Disconnect disconnects from the device.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return ErrNotConnected
	}
	d.connected = false
	clear(d.chars)
	dev := d.dev
	f := d.onDisc
	d.mu.Unlock()

	err := dev.Disconnect()
	if f != nil {
		f()
	}
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *Device) OnDisconnect(f func()) {
	d.mu.Lock()
	d.onDisc = f
	d.mu.Unlock()
}

// characteristic returns the device characteristic for id, discovering
// it if it has not already been used on this connection.
func (d *Device) characteristic(id gatt.ID) (bluetooth.DeviceCharacteristic, error) {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return bluetooth.DeviceCharacteristic{}, ErrNotConnected
	}
	char, ok := d.chars[id]
	dev := d.dev
	d.mu.Unlock()
	if ok {
		return char, nil
	}

	char, err := DeviceCharacteristic(&dev, id)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, err
	}
	d.mu.Lock()
	d.chars[id] = char
	d.mu.Unlock()
	return char, nil
}

func (d *Device) Read(id gatt.ID) ([]byte, error) {
	char, err := d.characteristic(id)
	if err != nil {
		return nil, err
	}
	return ReadCharacteristic(char)
}

func (d *Device) Write(id gatt.ID, p []byte, withResponse bool) error {
	char, err := d.characteristic(id)
	if err != nil {
		return err
	}
	acked, err := writeCharacteristic(char, p, withResponse)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}
	if withResponse && !acked {
		d.log.Debug("acknowledged write unavailable, wrote without response", zap.Stringer("id", id))
	}
	return nil
}

func (d *Device) Subscribe(id gatt.ID, h func([]byte)) error {
	char, err := d.characteristic(id)
	if err != nil {
		return err
	}
	err = char.EnableNotifications(h)
	if err != nil {
		return fmt.Errorf("failed to enable notifications for %s: %w", id, err)
	}
	return nil
}

func (d *Device) Unsubscribe(id gatt.ID) error {
	char, err := d.characteristic(id)
	if err != nil {
		return err
	}
	err = char.EnableNotifications(nil)
	if err != nil {
		return fmt.Errorf("failed to disable notifications for %s: %w", id, err)
	}
	return nil
}
