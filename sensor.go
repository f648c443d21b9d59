// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package h10

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kortschak/h10/battery"
	"github.com/kortschak/h10/gatt"
	"github.com/kortschak/h10/heart"
	"github.com/kortschak/h10/pmd"
)

// DefaultNamePrefix is the required prefix of a supported device's name.
const DefaultNamePrefix = "Polar H10"

// unknown is recorded for device information that could not be read.
const unknown = "Unknown"

// DeviceInfo holds the device information service values of a sensor.
type DeviceInfo struct {
	Manufacturer    string
	Model           string
	SerialNumber    string
	HardwareVersion string
	FirmwareVersion string
	SoftwareVersion string
	// SystemID is hex encoded.
	SystemID string
}

// Sensor is a Polar H10 session.
type Sensor struct {
	tr      gatt.Transport
	cp      *pmd.ControlPoint
	log     *zap.Logger
	timeout time.Duration
	prefix  string
	now     func() time.Time

	// regMu serialises Connect, Register and Remove.
	regMu sync.Mutex

	mu        sync.Mutex
	connected bool
	closing   bool
	name      string
	info      DeviceInfo
	features  pmd.Features
	battery   int
	caps      map[Kind]pmd.Settings
	active    map[Kind]pmd.Settings
	handlers  [numKinds]Handler
	hr        *heart.RateListener
	bat       *battery.LevelListener

	clockMu sync.Mutex
	clock   pmd.Clock
}

// Option is a Sensor option.
type Option func(*Sensor)

// WithLogger sets the logger used by the sensor.
func WithLogger(log *zap.Logger) Option {
	return func(s *Sensor) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTimeout sets the time to wait for PMD control point responses.
func WithTimeout(d time.Duration) Option {
	return func(s *Sensor) { s.timeout = d }
}

// WithNameCheck sets the prefix the device name must have for Connect
// to succeed. An empty prefix accepts any device.
func WithNameCheck(prefix string) Option {
	return func(s *Sensor) { s.prefix = prefix }
}

// WithClock sets the source of host time used to synchronise sample
// times with the sensor clock.
func WithClock(now func() time.Time) Option {
	return func(s *Sensor) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a new Sensor using the provided transport.
func New(tr gatt.Transport, opts ...Option) *Sensor {
	s := &Sensor{
		tr:      tr,
		log:     zap.NewNop(),
		timeout: pmd.DefaultTimeout,
		prefix:  DefaultNamePrefix,
		now:     time.Now,
		battery: -1,
	}
	for _, o := range opts {
		o(s)
	}
	s.cp = pmd.NewControlPoint(tr, pmd.WithTimeout(s.timeout), pmd.WithLogger(s.log))
	return s
}

// Connect connects to the sensor, checks its identity, reads its device
// information and battery level, and queries the measurement settings
// it supports. Connecting a connected Sensor is a no-op.
func (s *Sensor) Connect(ctx context.Context) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	if s.Connected() {
		s.log.Warn("device is already connected")
		return nil
	}

	s.tr.OnDisconnect(func() { s.linkDown(false) })
	err := s.tr.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailure, err)
	}
	s.mu.Lock()
	s.connected = true
	s.caps = map[Kind]pmd.Settings{
		KindHeartRate:  {},
		KindDisconnect: {},
	}
	s.active = make(map[Kind]pmd.Settings)
	s.mu.Unlock()
	s.clockMu.Lock()
	s.clock = pmd.Clock{}
	s.clockMu.Unlock()

	err = s.initialize(ctx)
	if err != nil {
		s.log.Error("connection failed", zap.Error(err))
		s.disconnect()
		return fmt.Errorf("%w: %w", ErrConnectionFailure, err)
	}
	return nil
}

func (s *Sensor) initialize(ctx context.Context) error {
	buf, err := s.tr.Read(gatt.DeviceName)
	if err != nil {
		return fmt.Errorf("failed to read device name: %w", err)
	}
	name := trim(buf)
	if !strings.HasPrefix(name, s.prefix) {
		return fmt.Errorf("unsupported device: %q", name)
	}
	s.log.Info("connected", zap.String("name", name))
	info := s.readDeviceInfo()

	level, err := battery.Level(s.tr)
	if err != nil {
		return err
	}
	bat, err := battery.NewLevelListener(s.tr, s.handleBattery)
	if err != nil {
		return err
	}
	s.log.Debug("battery notifications enabled", zap.Int("level", level))

	var feats pmd.Features
	buf, err = s.tr.Read(pmd.ControlPointID)
	if err != nil || len(buf) < len(feats) {
		s.log.Warn("failed to read pmd features", zap.Error(err), zap.Binary("value", buf))
	} else {
		copy(feats[:], buf)
		s.log.Debug("pmd features", zap.Stringer("features", feats))
	}

	s.mu.Lock()
	s.name = name
	s.info = info
	s.battery = level
	s.bat = bat
	s.features = feats
	s.caps[KindBattery] = pmd.Settings{}
	s.mu.Unlock()

	err = s.tr.Subscribe(pmd.DataID, s.handleData)
	if err != nil {
		return fmt.Errorf("failed to subscribe to pmd data: %w", err)
	}
	s.log.Debug("pmd notifications enabled")

	for _, k := range []Kind{KindECG, KindAcc} {
		m, _ := k.PMD()
		resp, err := s.cp.Execute(ctx, pmd.MeasureSettings, m, nil)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, pmd.ErrDisconnected) {
				return err
			}
			s.log.Warn("failed to get pmd settings", zap.Stringer("kind", k), zap.Error(err))
			continue
		}
		if resp.Status != pmd.StatusSuccess {
			s.log.Debug("pmd measurement not available", zap.Stringer("kind", k), zap.Stringer("status", resp.Status))
			continue
		}
		s.log.Debug("pmd settings", zap.Stringer("kind", k), zap.Any("settings", resp.Settings))
		s.mu.Lock()
		s.caps[k] = resp.Settings
		s.mu.Unlock()
	}
	return nil
}

func (s *Sensor) readDeviceInfo() DeviceInfo {
	var info DeviceInfo
	for _, f := range []struct {
		id  gatt.ID
		dst *string
		key string
	}{
		{id: gatt.ManufacturerName, dst: &info.Manufacturer, key: "manufacturer"},
		{id: gatt.ModelNumber, dst: &info.Model, key: "model"},
		{id: gatt.SerialNumber, dst: &info.SerialNumber, key: "serial_number"},
		{id: gatt.HardwareRevision, dst: &info.HardwareVersion, key: "hardware_version"},
		{id: gatt.FirmwareRevision, dst: &info.FirmwareVersion, key: "firmware_version"},
		{id: gatt.SoftwareRevision, dst: &info.SoftwareVersion, key: "software_version"},
		{id: gatt.SystemID, dst: &info.SystemID, key: "system_id"},
	} {
		buf, err := s.tr.Read(f.id)
		switch {
		case err != nil:
			s.log.Error("failed to read device information", zap.String("key", f.key), zap.Error(err))
			*f.dst = unknown
		case f.id == gatt.SystemID:
			*f.dst = hex.EncodeToString(buf)
		default:
			*f.dst = trim(buf)
		}
	}
	return info
}

func trim(b []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
}

// Disconnect disconnects from the sensor. The Disconnect handler is not
// called.
func (s *Sensor) Disconnect() error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return s.disconnect()
}

func (s *Sensor) disconnect() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	var err error
	if s.tr.Connected() {
		err = s.tr.Disconnect()
	}
	s.linkDown(true)
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

// linkDown clears the session state after the link is closed. Unless
// clean, the Disconnect handler is called.
func (s *Sensor) linkDown(clean bool) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	clean = clean || s.closing
	h := s.handlers[KindDisconnect]
	s.connected = false
	s.closing = false
	s.handlers = [numKinds]Handler{}
	clear(s.active)
	clear(s.caps)
	s.hr = nil
	s.bat = nil
	s.mu.Unlock()

	s.cp.Abort()

	if clean {
		s.log.Info("device disconnected")
		return
	}
	s.log.Warn("device unexpectedly disconnected")
	if h != nil {
		h(Disconnected{})
	}
}

// Connected returns whether the sensor is connected.
func (s *Sensor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Register installs h as the handler for data of kind k. For PMD
// measurement streams, the stream is started with the highest supported
// value of each setting, replaced by any values in overrides. Each
// override must hold a single value that the sensor supports.
func (s *Sensor) Register(ctx context.Context, k Kind, h Handler, overrides pmd.Settings) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidParameter)
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()

	s.mu.Lock()
	caps, ok := s.caps[k]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrUnsupportedMeasurement, k)
	}
	if s.handlers[k] != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrAlreadyRegistered, k)
	}
	cfg, err := configure(caps, overrides)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%v: %w", k, err)
	}
	m, isPMD := k.PMD()
	s.handlers[k] = h
	if isPMD {
		s.active[k] = cfg
	}
	s.mu.Unlock()

	switch k {
	case KindHeartRate:
		l, err := heart.NewRateListener(s.tr, s.handleRate)
		if err != nil {
			s.rollback(k)
			return err
		}
		s.mu.Lock()
		s.hr = l
		s.mu.Unlock()
		s.log.Info("heart rate notifications enabled")
		return nil
	case KindBattery, KindDisconnect:
		return nil
	}

	s.clockMu.Lock()
	s.clock.Reset(m)
	s.clockMu.Unlock()
	resp, err := s.cp.Execute(ctx, pmd.MeasureStart, m, cfg)
	if err != nil {
		s.rollback(k)
		return fmt.Errorf("failed to start %v measurement: %w", k, err)
	}
	if resp.Status != pmd.StatusSuccess {
		s.rollback(k)
		return &CommandError{Command: pmd.MeasureStart, Kind: k, Status: resp.Status}
	}
	s.log.Info("notifications enabled", zap.Stringer("kind", k), zap.Any("settings", cfg))
	return nil
}

// rollback removes the handler and active settings for k.
func (s *Sensor) rollback(k Kind) {
	s.mu.Lock()
	s.handlers[k] = nil
	delete(s.active, k)
	s.mu.Unlock()
}

// configure returns the settings to start a measurement with, given
// the sensor's supported settings and requested overrides.
func configure(caps, overrides pmd.Settings) (pmd.Settings, error) {
	var cfg pmd.Settings
	for _, c := range caps {
		if len(c.Val) == 0 {
			continue
		}
		cfg = append(cfg, pmd.Setting{Type: c.Type, Val: []uint64{c.Val[len(c.Val)-1]}})
	}
	for _, o := range overrides {
		c, ok := caps.Get(o.Type)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported setting %v", ErrInvalidParameter, o.Type)
		}
		if len(o.Val) != 1 {
			return nil, fmt.Errorf("%w: %v requires a single value: %v", ErrInvalidParameter, o.Type, o.Val)
		}
		if !slices.Contains(c.Val, o.Val[0]) {
			return nil, fmt.Errorf("%w: invalid value %d for %v", ErrInvalidParameter, o.Val[0], o.Type)
		}
		cfg = cfg.With(o)
	}
	return cfg, nil
}

// Remove removes the handler for data of kind k. PMD measurement streams
// are stopped, and heart rate notifications are disabled. If the sensor
// fails to stop the stream, the handler remains registered.
func (s *Sensor) Remove(ctx context.Context, k Kind) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	s.mu.Lock()
	_, ok := s.caps[k]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrUnsupportedMeasurement, k)
	}
	if s.handlers[k] == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotRegistered, k)
	}
	hr := s.hr
	s.mu.Unlock()

	switch k {
	case KindHeartRate:
		if hr != nil {
			err := hr.Close()
			if err != nil {
				return fmt.Errorf("failed to disable heart rate notifications: %w", err)
			}
		}
		s.mu.Lock()
		s.hr = nil
		s.mu.Unlock()
		s.log.Info("heart rate notifications disabled")
	case KindBattery, KindDisconnect:
	default:
		m, _ := k.PMD()
		resp, err := s.cp.Execute(ctx, pmd.MeasureStop, m, nil)
		if err != nil {
			return fmt.Errorf("failed to stop %v measurement: %w", k, err)
		}
		if resp.Status != pmd.StatusSuccess {
			return &CommandError{Command: pmd.MeasureStop, Kind: k, Status: resp.Status}
		}
		s.log.Info("notifications disabled", zap.Stringer("kind", k))
	}
	s.rollback(k)
	return nil
}

// Registered returns whether a handler is registered for k.
func (s *Sensor) Registered(k Kind) bool {
	if k >= numKinds {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[k] != nil
}

// Capabilities returns the settings supported by the sensor for each
// kind of data it provides. The returned settings must not be modified.
func (s *Sensor) Capabilities() map[Kind]pmd.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.caps)
}

// ActiveConfig returns the settings of each running PMD measurement
// stream. The returned settings must not be modified.
func (s *Sensor) ActiveConfig() map[Kind]pmd.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.active)
}

// BatteryLevel returns the most recent battery level percentage and
// whether it is known.
func (s *Sensor) BatteryLevel() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.battery, s.battery >= 0
}

// DeviceInformation returns the device information read on connection.
func (s *Sensor) DeviceInformation() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Name returns the device name read on connection.
func (s *Sensor) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Features returns the PMD features reported by the sensor.
func (s *Sensor) Features() pmd.Features {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features
}

func (s *Sensor) handler(k Kind) Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[k]
}

func (s *Sensor) handleBattery(level int, err error) {
	if err != nil {
		s.log.Warn("invalid battery level notification", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.battery = level
	h := s.handlers[KindBattery]
	s.mu.Unlock()
	if h != nil {
		h(BatteryLevel{Percent: level})
	}
}

func (s *Sensor) handleRate(r heart.Rate, err error) {
	h := s.handler(KindHeartRate)
	if h == nil {
		return
	}
	if err != nil {
		if !errors.Is(err, heart.ErrEmpty) {
			s.log.Warn("invalid heart rate notification", zap.Error(err))
		}
		return
	}
	s.log.Debug("heart rate update", zap.Uint16("hr", r.HR), zap.Durations("rr", r.RR))
	h(HeartRate{Rate: r})
}

func (s *Sensor) handleData(buf []byte) {
	now := s.now()

	var f pmd.Frame
	err := f.UnmarshalBinary(buf)
	if err != nil {
		s.log.Warn("invalid pmd data", zap.Error(err))
		return
	}
	k, ok := kindOf(f.Measure)
	if !ok {
		s.log.Warn("unprocessed measurement type", zap.Stringer("measurement", f.Measure))
		return
	}
	s.mu.Lock()
	h := s.handlers[k]
	rate, _ := s.active[k].Value(pmd.SampleRateSetting)
	s.mu.Unlock()
	if h == nil {
		return
	}

	var (
		n   int
		ecg pmd.ECG
		acc pmd.Acc
	)
	switch k {
	case KindECG:
		ecg, err = pmd.DecodeECG(f.Type, f.Samples)
		n = ecg.Len()
	case KindAcc:
		acc, err = pmd.DecodeAcc(f.Type, f.Samples)
		n = acc.Len()
	}
	if err != nil {
		s.log.Error("failed to decode pmd data", zap.Stringer("kind", k), zap.Error(err))
		return
	}
	if n == 0 {
		return
	}

	s.clockMu.Lock()
	diff, resynced := s.clock.Sync(pmd.HostTime(now), int64(f.Timestamp))
	times, err := s.clock.Timestamps(f.Measure, n, int(rate), int64(f.Timestamp))
	if err != nil {
		s.clock.Reset(f.Measure)
	}
	s.clockMu.Unlock()
	if resynced {
		s.log.Info("synchronised device time", zap.Duration("difference", time.Duration(diff)))
	}
	if err != nil {
		s.log.Error("failed to reconstruct sample times", zap.Stringer("kind", k), zap.Error(err))
		return
	}

	switch k {
	case KindECG:
		h(ECG{Time: times, Lead1: ecg.Lead1})
	case KindAcc:
		h(Acc{Time: times, X: acc.X, Y: acc.Y, Z: acc.Z})
	}
}
