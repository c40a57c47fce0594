// Package testutil provides synthetic signal fixtures shared by tests.
//
// Fixtures are deterministic: random components use a fixed seed so that
// analyzer results can be asserted exactly.
package testutil

import (
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// Sine returns n samples of amp*sin(2*pi*freq*t) sampled at fs.
func Sine(freq, fs, amp float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

// Constant returns n copies of v.
func Constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Noise returns n samples of zero-mean Gaussian noise with standard deviation
// sigma, from a generator seeded with seed.
func Noise(sigma float64, n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = r.NormFloat64() * sigma
	}
	return out
}

// Add sums signals sample-wise. All inputs must have the same length.
func Add(signals ...[]float64) []float64 {
	if len(signals) == 0 {
		return nil
	}
	out := make([]float64, len(signals[0]))
	for _, s := range signals {
		for i := range out {
			out[i] += s[i]
		}
	}
	return out
}

// Matrix builds a samples x channels matrix with one column per signal.
func Matrix(columns ...[]float64) *mat.Dense {
	if len(columns) == 0 {
		return nil
	}
	n := len(columns[0])
	m := mat.NewDense(n, len(columns), nil)
	for c, col := range columns {
		m.SetCol(c, col)
	}
	return m
}

// GridDescriptions returns count copies of token followed by the given
// trailing reference names.
func GridDescriptions(token string, count int, refs ...string) []string {
	out := make([]string, 0, count+len(refs))
	for i := 0; i < count; i++ {
		out = append(out, token)
	}
	return append(out, refs...)
}

// ServeBytes starts an httptest server answering every request with body.
// The server is closed when the test ends.
func ServeBytes(t *testing.T, contentType string, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
