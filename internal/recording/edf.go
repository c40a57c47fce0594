package recording

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	edfFixedHeader  = 256
	edfSignalHeader = 256
	edfDigitalMin   = math.MinInt16
	edfDigitalMax   = math.MaxInt16
)

// Per-signal header field widths, in file order: label, transducer,
// physical dimension, physical min/max, digital min/max, prefiltering,
// samples per record, reserved.
var edfSignalFields = [...]int{16, 80, 8, 8, 8, 8, 8, 80, 8, 32}

type edfSignal struct {
	label      string
	transducer string
	dimension  string
	physMin    float64
	physMax    float64
	digMin     int
	digMax     int
	prefilter  string
	perRecord  int
}

// edfAnnotationLabel marks EDF+ annotation channels, which carry no samples.
const edfAnnotationLabel = "EDF Annotations"

type edfHeader struct {
	patientID      string
	recordingID    string
	start          time.Time
	headerBytes    int
	records        int
	recordDuration float64 // seconds
	signals        []edfSignal
}

// ReadEDF decodes an EDF file. All data signals must share one sampling
// rate; EDF+ annotation signals are skipped.
func ReadEDF(r io.Reader, name string) (*Recording, error) {
	br := bufio.NewReader(r)
	hdr, err := readEDFHeader(br)
	if err != nil {
		return nil, err
	}

	var data []int
	offsets := make([]int, len(hdr.signals))
	recordBytes := 0
	for i, s := range hdr.signals {
		offsets[i] = recordBytes
		recordBytes += s.perRecord * 2
		if s.label != edfAnnotationLabel {
			data = append(data, i)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data signals", ErrFormat)
	}
	spr := hdr.signals[data[0]].perRecord
	for _, i := range data {
		if s := hdr.signals[i]; s.perRecord != spr {
			return nil, fmt.Errorf("%w: signal %d has %d samples per record, expected %d (mixed sampling rates)",
				ErrFormat, i, s.perRecord, spr)
		}
	}
	if spr <= 0 || !(hdr.recordDuration > 0) {
		return nil, fmt.Errorf("%w: invalid record layout (%d samples per %v s)", ErrFormat, spr, hdr.recordDuration)
	}

	// Skip anything between the signal headers and the declared header size.
	if extra := hdr.headerBytes - edfFixedHeader - len(hdr.signals)*edfSignalHeader; extra > 0 {
		if _, err := io.CopyN(io.Discard, br, int64(extra)); err != nil {
			return nil, fmt.Errorf("%w: truncated header: %v", ErrFormat, err)
		}
	}

	columns := make([][]float64, len(data))
	buf := make([]byte, recordBytes)
	for rec := 0; hdr.records < 0 || rec < hdr.records; rec++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			if hdr.records < 0 && errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: data record %d: %v", ErrFormat, rec, err)
		}
		for c, i := range data {
			sig := hdr.signals[i]
			off := offsets[i]
			for k := 0; k < spr; k++ {
				d := int16(binary.LittleEndian.Uint16(buf[off+2*k:]))
				columns[c] = append(columns[c], digitalToPhysical(d, sig))
			}
		}
	}

	out := &Recording{
		FileName:          name,
		Descriptions:      make([]string, len(data)),
		Units:             make([]string, len(data)),
		SamplingFrequency: float64(spr) / hdr.recordDuration,
	}
	for c, i := range data {
		out.Descriptions[c] = hdr.signals[i].label
		out.Units[c] = hdr.signals[i].dimension
	}
	if n := len(columns[0]); n > 0 {
		out.Samples = mat.NewDense(n, len(data), nil)
		for c, col := range columns {
			out.Samples.SetCol(c, col)
		}
	}
	return out, nil
}

// Open loads a recording from disk. Only EDF files are supported.
func Open(path string) (*Recording, error) {
	cleanPath := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(cleanPath)); ext != ".edf" {
		return nil, fmt.Errorf("%w: %q (want .edf)", ErrFormat, ext)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()
	return ReadEDF(f, filepath.Base(cleanPath))
}

func readEDFHeader(r io.Reader) (*edfHeader, error) {
	b := make([]byte, edfFixedHeader)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrFormat, err)
	}
	field := func(from, to int) string { return strings.TrimSpace(string(b[from:to])) }

	hdr := &edfHeader{
		patientID:   field(8, 88),
		recordingID: field(88, 168),
	}
	if d, err := time.Parse("02.01.06 15.04.05", field(168, 176)+" "+field(176, 184)); err == nil {
		hdr.start = d
	}

	var err error
	if hdr.headerBytes, err = strconv.Atoi(field(184, 192)); err != nil {
		return nil, fmt.Errorf("%w: header bytes: %v", ErrFormat, err)
	}
	if hdr.records, err = strconv.Atoi(field(236, 244)); err != nil {
		return nil, fmt.Errorf("%w: data record count: %v", ErrFormat, err)
	}
	if hdr.recordDuration, err = strconv.ParseFloat(field(244, 252), 64); err != nil {
		return nil, fmt.Errorf("%w: record duration: %v", ErrFormat, err)
	}
	ns, err := strconv.Atoi(field(252, 256))
	if err != nil || ns < 0 {
		return nil, fmt.Errorf("%w: signal count %q", ErrFormat, field(252, 256))
	}

	sb := make([]byte, ns*edfSignalHeader)
	if _, err := io.ReadFull(r, sb); err != nil {
		return nil, fmt.Errorf("%w: reading signal headers: %v", ErrFormat, err)
	}
	values := make([][]string, len(edfSignalFields))
	off := 0
	for f, w := range edfSignalFields {
		values[f] = make([]string, ns)
		for i := 0; i < ns; i++ {
			values[f][i] = strings.TrimSpace(string(sb[off : off+w]))
			off += w
		}
	}

	hdr.signals = make([]edfSignal, ns)
	for i := range hdr.signals {
		s := &hdr.signals[i]
		s.label = values[0][i]
		s.transducer = values[1][i]
		s.dimension = values[2][i]
		s.prefilter = values[7][i]
		if s.physMin, err = strconv.ParseFloat(values[3][i], 64); err != nil {
			return nil, fmt.Errorf("%w: signal %d physical minimum: %v", ErrFormat, i, err)
		}
		if s.physMax, err = strconv.ParseFloat(values[4][i], 64); err != nil {
			return nil, fmt.Errorf("%w: signal %d physical maximum: %v", ErrFormat, i, err)
		}
		if s.digMin, err = strconv.Atoi(values[5][i]); err != nil {
			return nil, fmt.Errorf("%w: signal %d digital minimum: %v", ErrFormat, i, err)
		}
		if s.digMax, err = strconv.Atoi(values[6][i]); err != nil {
			return nil, fmt.Errorf("%w: signal %d digital maximum: %v", ErrFormat, i, err)
		}
		if s.perRecord, err = strconv.Atoi(values[8][i]); err != nil || s.perRecord < 0 {
			return nil, fmt.Errorf("%w: signal %d samples per record %q", ErrFormat, i, values[8][i])
		}
	}
	return hdr, nil
}

func digitalToPhysical(d int16, s edfSignal) float64 {
	if s.digMax == s.digMin {
		return 0
	}
	return (float64(d)-float64(s.digMin))*(s.physMax-s.physMin)/float64(s.digMax-s.digMin) + s.physMin
}

func physicalToDigital(v float64, s edfSignal) int16 {
	if s.physMax == s.physMin {
		return 0
	}
	d := math.Round((v-s.physMin)*float64(s.digMax-s.digMin)/(s.physMax-s.physMin) + float64(s.digMin))
	return int16(max(float64(s.digMin), min(float64(s.digMax), d)))
}

// WriteEDF encodes rec as an EDF file. Each channel gets its own physical
// range derived from its samples. Labels longer than 16 characters are
// truncated. The last data record is padded with zeros.
func WriteEDF(w io.Writer, rec *Recording) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	ns := rec.ChannelCount()
	if ns == 0 {
		return ErrNoChannelsSelected
	}
	if ns > 9999 {
		return fmt.Errorf("%w: %d channels exceed the header limit", ErrFormat, ns)
	}
	spr, duration := recordLayout(rec.SamplingFrequency)
	n := rec.SampleCount()
	records := (n + spr - 1) / spr

	hdr := &edfHeader{
		recordingID:    "hdsemg-select " + rec.FileName,
		start:          time.Now(),
		headerBytes:    edfFixedHeader + ns*edfSignalHeader,
		records:        records,
		recordDuration: duration,
		signals:        make([]edfSignal, ns),
	}
	cols := make([][]float64, ns)
	for i := range hdr.signals {
		if n > 0 {
			cols[i] = mat.Col(nil, i, rec.Samples)
		}
		lo, hi := physicalRange(cols[i])
		lo, hi = parseEDFNumber(formatEDFBound(lo, false)), parseEDFNumber(formatEDFBound(hi, true))
		if lo >= hi {
			hi = lo + 1
		}
		unit := ""
		if rec.Units != nil {
			unit = rec.Units[i]
		}
		hdr.signals[i] = edfSignal{
			label:     rec.Descriptions[i],
			dimension: unit,
			physMin:   lo,
			physMax:   hi,
			digMin:    edfDigitalMin,
			digMax:    edfDigitalMax,
			perRecord: spr,
		}
	}

	bw := bufio.NewWriter(w)
	if err := writeEDFHeader(bw, hdr); err != nil {
		return err
	}
	buf := make([]byte, 2)
	for r := 0; r < records; r++ {
		for s, sig := range hdr.signals {
			for k := 0; k < spr; k++ {
				idx := r*spr + k
				v := 0.0
				if idx < n {
					v = cols[s][idx]
				}
				binary.LittleEndian.PutUint16(buf, uint16(physicalToDigital(v, sig)))
				if _, err := bw.Write(buf); err != nil {
					return fmt.Errorf("failed to write data record: %w", err)
				}
			}
		}
	}
	return bw.Flush()
}

// WriteEDFFile writes rec to path.
func WriteEDFFile(path string, rec *Recording) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	if err := WriteEDF(f, rec); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// recordLayout picks samples per record and a whole-second record duration
// that holds an integral number of samples. Rates with no such duration up
// to 100 s fall back to one sample per record.
func recordLayout(fs float64) (spr int, duration float64) {
	for d := 1; d <= 100; d++ {
		n := fs * float64(d)
		if r := math.Round(n); r >= 1 && math.Abs(n-r) < 1e-9 {
			return int(r), float64(d)
		}
	}
	return 1, 1 / fs
}

// physicalRange returns the sample extremes, widened when the channel is flat
// so the digital mapping stays invertible. Zero is always inside the range
// so record padding is representable.
func physicalRange(x []float64) (lo, hi float64) {
	if len(x) > 0 {
		lo, hi = floats.Min(x), floats.Max(x)
	}
	lo, hi = math.Min(lo, 0), math.Max(hi, 0)
	if lo == hi {
		return lo - 1, hi + 1
	}
	return lo, hi
}

func writeEDFHeader(w io.Writer, hdr *edfHeader) error {
	var b bytes.Buffer
	pad := func(s string, width int) {
		if len(s) > width {
			s = s[:width]
		}
		fmt.Fprintf(&b, "%-*s", width, s)
	}
	pad("0", 8)
	pad(hdr.patientID, 80)
	pad(hdr.recordingID, 80)
	pad(hdr.start.Format("02.01.06"), 8)
	pad(hdr.start.Format("15.04.05"), 8)
	pad(strconv.Itoa(hdr.headerBytes), 8)
	pad("", 44)
	pad(strconv.Itoa(hdr.records), 8)
	pad(formatEDFNumber(hdr.recordDuration), 8)
	pad(strconv.Itoa(len(hdr.signals)), 4)

	for f, width := range edfSignalFields {
		for _, s := range hdr.signals {
			switch f {
			case 0:
				pad(s.label, width)
			case 1:
				pad(s.transducer, width)
			case 2:
				pad(s.dimension, width)
			case 3:
				pad(formatEDFNumber(s.physMin), width)
			case 4:
				pad(formatEDFNumber(s.physMax), width)
			case 5:
				pad(strconv.Itoa(s.digMin), width)
			case 6:
				pad(strconv.Itoa(s.digMax), width)
			case 7:
				pad(s.prefilter, width)
			case 8:
				pad(strconv.Itoa(s.perRecord), width)
			default:
				pad("", width)
			}
		}
	}
	if _, err := w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// formatEDFNumber renders v in at most 8 characters, dropping precision as
// needed.
func formatEDFNumber(v float64) string {
	for prec := 6; prec >= 0; prec-- {
		s := strconv.FormatFloat(v, 'f', prec, 64)
		if strings.Contains(s, ".") {
			s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		}
		if len(s) <= 8 {
			return s
		}
	}
	return strconv.FormatFloat(v, 'g', 3, 64)
}

// formatEDFBound renders v in at most 8 characters, rounding down when up is
// false and up otherwise, so the parsed bound never cuts into the samples.
func formatEDFBound(v float64, up bool) string {
	round := math.Floor
	if up {
		round = math.Ceil
	}
	outward := func(s string) bool {
		p := parseEDFNumber(s)
		if up {
			return p >= v
		}
		return p <= v
	}
	for prec := 6; prec >= 0; prec-- {
		scale := math.Pow10(prec)
		s := strconv.FormatFloat(round(v*scale)/scale, 'f', prec, 64)
		if strings.Contains(s, ".") {
			s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		}
		if len(s) <= 8 && outward(s) {
			return s
		}
	}
	exp := int(math.Floor(math.Log10(math.Abs(v))))
	for prec := 2; prec >= 0; prec-- {
		step := math.Pow10(exp - prec)
		s := strconv.FormatFloat(round(v/step)*step, 'e', prec, 64)
		if len(s) <= 8 && outward(s) {
			return s
		}
	}
	return formatEDFNumber(v)
}

func parseEDFNumber(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
