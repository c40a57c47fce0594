package recording

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/hdsemg/hdsemg-select/internal/testutil"
)

func sampleRecording(n int) *Recording {
	return &Recording{
		FileName:     "session.edf",
		Descriptions: []string{"HD10MM0202", "HD10MM0202", "HD10MM0202", "HD10MM0202", "Ref"},
		Units:        []string{"uV", "uV", "uV", "uV", "mV"},
		Samples: testutil.Matrix(
			testutil.Sine(50, 2048, 100, n),
			testutil.Sine(20, 2048, 250, n),
			testutil.Noise(30, n, 3),
			testutil.Constant(0, n),
			testutil.Constant(4.5, n),
		),
		SamplingFrequency: 2048,
	}
}

func TestEDFRoundTrip(t *testing.T) {
	rec := sampleRecording(4096)

	var buf bytes.Buffer
	require.NoError(t, WriteEDF(&buf, rec))
	assert.Equal(t, 256+5*256+5*4096*2, buf.Len())

	got, err := ReadEDF(&buf, "copy.edf")
	require.NoError(t, err)
	assert.Equal(t, "copy.edf", got.FileName)
	assert.Equal(t, rec.Descriptions, got.Descriptions)
	assert.Equal(t, rec.Units, got.Units)
	assert.Equal(t, 2048.0, got.SamplingFrequency)
	require.Equal(t, 4096, got.SampleCount())

	for ch := 0; ch < rec.ChannelCount(); ch++ {
		want, _ := rec.Channel(ch)
		have, err := got.Channel(ch)
		require.NoError(t, err)
		lo, hi := physicalRange(want)
		tol := (hi - lo) / 65535 * 2
		assert.InDeltaSlice(t, want, have, tol, "channel %d", ch)
	}
}

func TestEDFPadsLastRecord(t *testing.T) {
	rec := sampleRecording(3000)
	var buf bytes.Buffer
	require.NoError(t, WriteEDF(&buf, rec))

	got, err := ReadEDF(&buf, "x.edf")
	require.NoError(t, err)
	assert.Equal(t, 4096, got.SampleCount())
	last, _ := got.Channel(4)
	assert.InDelta(t, 4.5, last[2999], 1e-3)
	assert.InDelta(t, 0, last[3000], 1e-3)
}

func TestEDFNonIntegralRate(t *testing.T) {
	rec := sampleRecording(64)
	rec.SamplingFrequency = 512.5
	var buf bytes.Buffer
	require.NoError(t, WriteEDF(&buf, rec))
	got, err := ReadEDF(&buf, "x.edf")
	require.NoError(t, err)
	assert.Equal(t, 512.5, got.SamplingFrequency)
	// two-second records of 1025 samples
	assert.Equal(t, 1025, got.SampleCount())
}

func TestEDFLabelTruncated(t *testing.T) {
	rec := sampleRecording(16)
	rec.Descriptions[0] = "EMG HD08MM1305 channel 1"
	var buf bytes.Buffer
	require.NoError(t, WriteEDF(&buf, rec))
	got, err := ReadEDF(&buf, "x.edf")
	require.NoError(t, err)
	assert.Equal(t, "EMG HD08MM1305 c", got.Descriptions[0])
}

func TestReadEDF_Malformed(t *testing.T) {
	_, err := ReadEDF(strings.NewReader("short"), "x.edf")
	assert.True(t, errors.Is(err, ErrFormat))

	rec := sampleRecording(2048)
	var buf bytes.Buffer
	require.NoError(t, WriteEDF(&buf, rec))
	truncated := buf.Bytes()[:buf.Len()-10]
	_, err = ReadEDF(bytes.NewReader(truncated), "x.edf")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestWriteEDF_Validation(t *testing.T) {
	rec := sampleRecording(16)
	rec.Descriptions = rec.Descriptions[:3]
	assert.ErrorIs(t, WriteEDF(&bytes.Buffer{}, rec), ErrFormat)

	rec = sampleRecording(16)
	rec.SamplingFrequency = 0
	assert.ErrorIs(t, WriteEDF(&bytes.Buffer{}, rec), ErrFormat)

	assert.ErrorIs(t, WriteEDF(&bytes.Buffer{}, &Recording{}), ErrNoChannelsSelected)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.edf")
	require.NoError(t, WriteEDFFile(path, sampleRecording(2048)))

	got, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "rec.edf", got.FileName)
	assert.Equal(t, 5, got.ChannelCount())

	txt := filepath.Join(dir, "rec.mat")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = Open(txt)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = Open(filepath.Join(dir, "missing.edf"))
	assert.Error(t, err)
}

func TestFormatEDFNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{-0.5, "-0.5"},
		{-123.4567891, "-123.457"},
		{12345678, "12345678"},
		{0.00048828125, "0.000488"},
	}
	for _, tc := range tests {
		got := formatEDFNumber(tc.in)
		assert.Equal(t, tc.want, got)
		assert.LessOrEqual(t, len(got), 8)
	}
}

func TestFormatEDFBound(t *testing.T) {
	tests := []struct {
		in   float64
		up   bool
		want string
	}{
		{0, false, "0"},
		{3, true, "3"},
		{-1.25e-5, false, "-0.00002"},
		{1.25e-5, true, "0.000013"},
		{-123.4567891, false, "-123.457"},
		{123.4567891, true, "123.4568"},
		{0.00048828125, true, "0.000489"},
		{-12345678.9, false, "-1.3e+07"},
	}
	for _, tc := range tests {
		got := formatEDFBound(tc.in, tc.up)
		assert.Equal(t, tc.want, got, "in=%v up=%t", tc.in, tc.up)
		assert.LessOrEqual(t, len(got), 8)
		if tc.up {
			assert.GreaterOrEqual(t, parseEDFNumber(got), tc.in)
		} else {
			assert.LessOrEqual(t, parseEDFNumber(got), tc.in)
		}
	}
}

func TestEDFSmallAmplitudeKeepsPeaks(t *testing.T) {
	const n = 2048
	rec := &Recording{
		FileName:     "volts.edf",
		Descriptions: []string{"HD10MM0202", "Ref"},
		Units:        []string{"V", "mV"},
		Samples: testutil.Matrix(
			testutil.Sine(50, 2048, 1.25e-5, n),
			testutil.Sine(20, 2048, 0.1234567, n),
		),
		SamplingFrequency: 2048,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteEDF(&buf, rec))
	got, err := ReadEDF(&buf, "volts.edf")
	require.NoError(t, err)

	for ch := 0; ch < rec.ChannelCount(); ch++ {
		want, err := rec.Channel(ch)
		require.NoError(t, err)
		have, err := got.Channel(ch)
		require.NoError(t, err)

		step := 2 * (floats.Max(want) - floats.Min(want)) / (edfDigitalMax - edfDigitalMin)
		assert.InDelta(t, floats.Min(want), floats.Min(have), step, "channel %d min", ch)
		assert.InDelta(t, floats.Max(want), floats.Max(have), step, "channel %d max", ch)
	}
}

func TestReadEDF_NegativeSamplesPerRecord(t *testing.T) {
	rec := sampleRecording(2048)
	var buf bytes.Buffer
	require.NoError(t, WriteEDF(&buf, rec))
	b := buf.Bytes()

	// Turn signal 0 into an annotation signal with a negative sample count.
	ns := rec.ChannelCount()
	label := edfFixedHeader
	spr := edfFixedHeader + ns*(16+80+8+8+8+8+8+80)
	copy(b[label:label+16], fmt.Sprintf("%-16s", edfAnnotationLabel))
	copy(b[spr:spr+8], fmt.Sprintf("%-8s", "-5"))

	_, err := ReadEDF(bytes.NewReader(b), "x.edf")
	require.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "samples per record")
}

func TestRecordLayout(t *testing.T) {
	tests := []struct {
		fs       float64
		spr      int
		duration float64
	}{
		{2048, 2048, 1},
		{512.5, 1025, 2},
		{0.5, 1, 2},
	}
	for _, tc := range tests {
		spr, d := recordLayout(tc.fs)
		assert.Equal(t, tc.spr, spr, "fs=%v", tc.fs)
		assert.Equal(t, tc.duration, d, "fs=%v", tc.fs)
	}
}

func TestSubset(t *testing.T) {
	rec := sampleRecording(8)
	sub, err := rec.Subset([]int{4, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ref", "HD10MM0202"}, sub.Descriptions)
	assert.Equal(t, []string{"mV", "uV"}, sub.Units)
	c0, _ := sub.Channel(0)
	assert.Equal(t, testutil.Constant(4.5, 8), c0)

	_, err = rec.Subset(nil)
	assert.ErrorIs(t, err, ErrNoChannelsSelected)
	_, err = rec.Subset([]int{9})
	assert.Error(t, err)
}
