// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import "fmt"

// ECGSampleFreq is the H10 ECG sample rate.
const ECGSampleFreq = 130 // Hz

// ECG is a frame of ECG samples.
type ECG struct {
	Lead1 []int32 // µV
}

// Len returns the number of samples in the frame.
func (m ECG) Len() int { return len(m.Lead1) }

// DecodeECG decodes the samples of an ECG frame.
func DecodeECG(typ FrameType, data []byte) (ECG, error) {
	if typ != ECGFrameType0 {
		return ECG{}, fmt.Errorf("%w: ecg frame type %d", ErrUnsupportedFrameType, typ)
	}
	if len(data)%ECGSamplingStride != 0 {
		return ECG{}, fmt.Errorf("%w: %d trailing ecg bytes", ErrPartialSample, len(data)%ECGSamplingStride)
	}
	trace := make([]int32, 0, len(data)/ECGSamplingStride)
	for i := 0; i < len(data); i += ECGSamplingStride {
		trace = append(trace, leInt24(data[i:i+ECGSamplingStride]))
	}
	return ECG{Lead1: trace}, nil
}
