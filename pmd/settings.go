// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SettingType specifies PMD measurement settings.
type SettingType uint8

const (
	SampleRateSetting       SettingType = 0
	ResolutionSetting       SettingType = 1
	RangeUnitSetting        SettingType = 2
	RangeMilliUnitSetting   SettingType = 3
	ChannelsSetting         SettingType = 4
	ConversionFactorSetting SettingType = 5
)

var settingNames = [...]string{
	SampleRateSetting:       "SAMPLE_RATE",
	ResolutionSetting:       "RESOLUTION",
	RangeUnitSetting:        "RANGE",
	RangeMilliUnitSetting:   "RANGE_MILLIUNIT",
	ChannelsSetting:         "CHANNELS",
	ConversionFactorSetting: "FACTOR",
}

func (t SettingType) String() string {
	if uint(t) < uint(len(settingNames)) {
		return settingNames[t]
	}
	return "SettingType(" + strconv.Itoa(int(t)) + ")"
}

// ParseSettingType returns the SettingType with the given protocol name.
func ParseSettingType(name string) (SettingType, error) {
	for t, n := range settingNames {
		if strings.EqualFold(n, name) {
			return SettingType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown setting type: %q", name)
}

// Width returns the number of bytes used to encode each value of the
// setting. Settings without an explicit width use 16 bits.
func (t SettingType) Width() int {
	switch t {
	case ChannelsSetting:
		return uint8Size
	case ConversionFactorSetting:
		return float32Size
	case RangeMilliUnitSetting:
		return uint64Size
	default:
		return uint16Size
	}
}

// headerSize is the size of the type and count prefix of a setting.
const headerSize = 2

// Setting is a PMD measurement setting. A setting sent to the sensor holds
// a single value; a setting reported by the sensor holds the ordered set
// of values it supports.
type Setting struct {
	Type SettingType
	Val  []uint64
}

// Size returns the number of bytes the setting writes to the PMD
// control point characteristic.
func (s Setting) Size() int { return headerSize + len(s.Val)*s.Type.Width() }

func (s Setting) write(dst []byte) (int, error) {
	if len(s.Val) > math.MaxUint8 {
		return 0, fmt.Errorf("too many values for %v: %d", s.Type, len(s.Val))
	}
	if len(dst) < s.Size() {
		return 0, fmt.Errorf("dst too short")
	}
	width := s.Type.Width()
	dst[0] = byte(s.Type)
	dst[1] = byte(len(s.Val))
	for i, v := range s.Val {
		if width < uint64Size && v>>(8*width) != 0 {
			return 0, fmt.Errorf("value out of range for %v: %d", s.Type, v)
		}
		putUint(dst[headerSize+i*width:], v, width)
	}
	return s.Size(), nil
}

// Float32 returns the setting's values interpreted as IEEE 754 single
// precision values, as used by ConversionFactorSetting.
func (s Setting) Float32() []float32 {
	f := make([]float32, len(s.Val))
	for i, v := range s.Val {
		f[i] = math.Float32frombits(uint32(v))
	}
	return f
}

func (s Setting) String() string {
	var buf strings.Builder
	buf.WriteString(s.Type.String())
	buf.WriteString(": ")
	for i, v := range s.Val {
		if i != 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(strconv.FormatUint(v, 10))
	}
	return buf.String()
}

// Settings is an ordered collection of settings.
type Settings []Setting

// Get returns the setting of type typ.
func (s Settings) Get(typ SettingType) (Setting, bool) {
	for _, set := range s {
		if set.Type == typ {
			return set, true
		}
	}
	return Setting{}, false
}

// Value returns the first value of the setting of type typ.
func (s Settings) Value(typ SettingType) (uint64, bool) {
	set, ok := s.Get(typ)
	if !ok || len(set.Val) == 0 {
		return 0, false
	}
	return set.Val[0], true
}

// With returns s with set replacing any setting of the same type, or
// appended if there is none. The receiver is not modified.
func (s Settings) With(set Setting) Settings {
	dst := make(Settings, 0, len(s)+1)
	replaced := false
	for _, e := range s {
		if e.Type == set.Type {
			e = set
			replaced = true
		}
		dst = append(dst, e)
	}
	if !replaced {
		dst = append(dst, set)
	}
	return dst
}

// Size returns the number of bytes the settings write to the PMD
// control point characteristic.
func (s Settings) Size() int {
	var n int
	for _, set := range s {
		n += set.Size()
	}
	return n
}

func (s Settings) write(dst []byte) (int, error) {
	var off int
	for _, set := range s {
		n, err := set.write(dst[off:])
		if err != nil {
			return off, err
		}
		off += n
	}
	return off, nil
}

// MarshalBinary returns the control point encoding of the settings.
func (s Settings) MarshalBinary() ([]byte, error) {
	buf := make([]byte, s.Size())
	_, err := s.write(buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// ParseSettings decodes settings from a control point response. Decoding
// stops at the first setting that is truncated by the end of data; that
// setting is dropped and the settings before it are returned.
func ParseSettings(data []byte) Settings {
	var settings Settings
	for len(data) > headerSize {
		typ := SettingType(data[0])
		n := int(data[1])
		width := typ.Width()
		data = data[headerSize:]
		if len(data) < n*width {
			break
		}
		set := Setting{Type: typ, Val: make([]uint64, n)}
		for i := range set.Val {
			set.Val[i] = getUint(data[i*width:], width)
		}
		data = data[n*width:]
		settings = append(settings, set)
	}
	return settings
}

func putUint(dst []byte, v uint64, width int) {
	switch width {
	case uint8Size:
		dst[0] = byte(v)
	case uint16Size:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case float32Size:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case uint64Size:
		binary.LittleEndian.PutUint64(dst, v)
	default:
		panic(fmt.Sprintf("invalid setting width: %d", width))
	}
}

func getUint(src []byte, width int) uint64 {
	switch width {
	case uint8Size:
		return uint64(src[0])
	case uint16Size:
		return uint64(binary.LittleEndian.Uint16(src))
	case float32Size:
		return uint64(binary.LittleEndian.Uint32(src))
	case uint64Size:
		return binary.LittleEndian.Uint64(src)
	default:
		panic(fmt.Sprintf("invalid setting width: %d", width))
	}
}
