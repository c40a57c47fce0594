package testutil

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestSine(t *testing.T) {
	s := Sine(50, 1000, 2, 1000)
	require.Len(t, s, 1000)
	assert.InDelta(t, 0, s[0], 1e-12)
	assert.InDelta(t, 2, s[5], 1e-12) // quarter period at 50 Hz / 1 kHz
	assert.InDelta(t, 0, stat.Mean(s, nil), 1e-9)
}

func TestNoise_Deterministic(t *testing.T) {
	a := Noise(1, 256, 7)
	b := Noise(1, 256, 7)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Noise(1, 256, 8))
}

func TestAddAndConstant(t *testing.T) {
	got := Add(Constant(1, 3), Constant(2, 3))
	assert.Equal(t, []float64{3, 3, 3}, got)
	assert.Nil(t, Add())
}

func TestMatrix(t *testing.T) {
	m := Matrix([]float64{1, 2, 3}, []float64{4, 5, 6})
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 5.0, m.At(1, 1))
	assert.Nil(t, Matrix())
}

func TestGridDescriptions(t *testing.T) {
	got := GridDescriptions("HD10MM0202", 2, "REF")
	assert.Equal(t, []string{"HD10MM0202", "HD10MM0202", "REF"}, got)
}

func TestServeBytes(t *testing.T) {
	srv := ServeBytes(t, "application/json", []byte(`[]`))
	resp, err := http.Get(srv.URL)
	AssertNoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	AssertNoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
