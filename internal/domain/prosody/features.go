package prosody

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// Framing and filterbank defaults. Both signals in a comparison must be
// framed identically, which an Extractor guarantees.
const (
	DefaultSampleRate   = 16000
	DefaultWindowSize   = 512
	DefaultHopSize      = 160
	DefaultMelBands     = 40
	DefaultCoefficients = 20

	amin  = 1e-10
	topDB = 80.0
)

// Features is a K×N cepstral matrix: row k holds coefficient k over N frames.
type Features [][]float64

// Coefficients returns K.
func (f Features) Coefficients() int { return len(f) }

// Frames returns N.
func (f Features) Frames() int {
	if len(f) == 0 {
		return 0
	}
	return len(f[0])
}

// Frame copies column n into a new slice.
func (f Features) Frame(n int) []float64 {
	out := make([]float64, len(f))
	for k := range f {
		out[k] = f[k][n]
	}
	return out
}

// Mean returns the per-coefficient temporal mean. With zero frames every
// mean is zero.
func (f Features) Mean() []float64 {
	out := make([]float64, len(f))
	n := f.Frames()
	if n == 0 {
		return out
	}
	for k, row := range f {
		var sum float64
		for _, v := range row {
			sum += v
		}
		out[k] = sum / float64(n)
	}
	return out
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithFraming sets the analysis window and hop, in samples. Both must be
// positive; the pair is applied together or not at all.
func WithFraming(window, hop int) ExtractorOption {
	return func(e *Extractor) {
		if window > 0 && hop > 0 {
			e.window = window
			e.hop = hop
		}
	}
}

// WithSampleRate sets the signal rate used to place the mel filters.
func WithSampleRate(rate int) ExtractorOption {
	return func(e *Extractor) {
		if rate > 0 {
			e.sampleRate = rate
		}
	}
}

// WithMelBands sets the number of mel filters. It must be at least the
// number of cepstral coefficients.
func WithMelBands(bands int) ExtractorOption {
	return func(e *Extractor) {
		if bands >= e.coeffs {
			e.melBands = bands
		}
	}
}

// Extractor computes MFCC matrices. It is safe for concurrent use.
type Extractor struct {
	sampleRate int
	window     int
	hop        int
	melBands   int
	coeffs     int

	hann  []float64
	melFB *mat.Dense // melBands × (window/2+1)
	dct   *mat.Dense // coeffs × melBands
	ffts  sync.Pool
}

// NewExtractor builds an Extractor with precomputed window, filterbank and
// DCT basis.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		sampleRate: DefaultSampleRate,
		window:     DefaultWindowSize,
		hop:        DefaultHopSize,
		melBands:   DefaultMelBands,
		coeffs:     DefaultCoefficients,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.hann = hannWindow(e.window)
	e.melFB = melFilterbank(e.sampleRate, e.window, e.melBands)
	e.dct = dctBasis(e.coeffs, e.melBands)
	n := e.window
	e.ffts.New = func() any { return fourier.NewFFT(n) }
	return e
}

// WindowSize returns the analysis window in samples.
func (e *Extractor) WindowSize() int { return e.window }

// HopSize returns the frame advance in samples.
func (e *Extractor) HopSize() int { return e.hop }

// Extract returns the MFCC matrix of samples. Frames are centered with
// window/2 zeros of padding on each side, so N = 1 + len(samples)/hop.
// An empty signal yields zero frames.
func (e *Extractor) Extract(samples []float32) Features {
	feats := make(Features, e.coeffs)
	if len(samples) == 0 {
		for k := range feats {
			feats[k] = []float64{}
		}
		return feats
	}

	pad := e.window / 2
	padded := make([]float64, len(samples)+2*pad)
	for i, s := range samples {
		padded[pad+i] = float64(s)
	}
	frames := 1 + (len(padded)-e.window)/e.hop

	fft := e.ffts.Get().(*fourier.FFT)
	defer e.ffts.Put(fft)

	bins := e.window/2 + 1
	frame := make([]float64, e.window)
	spectrum := make([]complex128, bins)
	power := mat.NewVecDense(bins, nil)
	mel := mat.NewVecDense(e.melBands, nil)
	logMel := mat.NewDense(e.melBands, frames, nil)

	maxDB := math.Inf(-1)
	for n := 0; n < frames; n++ {
		off := n * e.hop
		for i := range frame {
			frame[i] = padded[off+i] * e.hann[i]
		}
		spectrum = fft.Coefficients(spectrum, frame)
		for i, c := range spectrum {
			power.SetVec(i, real(c)*real(c)+imag(c)*imag(c))
		}
		mel.MulVec(e.melFB, power)
		for m := 0; m < e.melBands; m++ {
			db := 10 * math.Log10(math.Max(mel.AtVec(m), amin))
			logMel.Set(m, n, db)
			maxDB = math.Max(maxDB, db)
		}
	}

	floor := maxDB - topDB
	logMel.Apply(func(_, _ int, v float64) float64 { return math.Max(v, floor) }, logMel)

	var cep mat.Dense
	cep.Mul(e.dct, logMel)
	for k := range feats {
		feats[k] = mat.Row(nil, k, &cep)
	}
	return feats
}

// hannWindow returns the periodic Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func hzToMel(f float64) float64 { return 2595 * math.Log10(1+f/700) }
func melToHz(m float64) float64 { return 700 * (math.Pow(10, m/2595) - 1) }

// melFilterbank builds area-normalized triangular filters evenly spaced on
// the HTK mel scale between 0 Hz and Nyquist.
func melFilterbank(sampleRate, nfft, bands int) *mat.Dense {
	bins := nfft/2 + 1
	nyquist := float64(sampleRate) / 2

	fftFreqs := make([]float64, bins)
	for j := range fftFreqs {
		fftFreqs[j] = nyquist * float64(j) / float64(bins-1)
	}

	hiMel := hzToMel(nyquist)
	edges := make([]float64, bands+2)
	for i := range edges {
		edges[i] = melToHz(hiMel * float64(i) / float64(bands+1))
	}

	fb := mat.NewDense(bands, bins, nil)
	for m := 0; m < bands; m++ {
		lo, center, hi := edges[m], edges[m+1], edges[m+2]
		norm := 2 / (hi - lo)
		for j, f := range fftFreqs {
			lower := (f - lo) / (center - lo)
			upper := (hi - f) / (hi - center)
			if w := math.Min(lower, upper); w > 0 {
				fb.Set(m, j, w*norm)
			}
		}
	}
	return fb
}

// dctBasis returns the first k rows of the orthonormal DCT-II matrix of size n.
func dctBasis(k, n int) *mat.Dense {
	basis := mat.NewDense(k, n, nil)
	s0 := math.Sqrt(1 / float64(n))
	sk := math.Sqrt(2 / float64(n))
	for row := 0; row < k; row++ {
		scale := sk
		if row == 0 {
			scale = s0
		}
		for col := 0; col < n; col++ {
			basis.Set(row, col, scale*math.Cos(math.Pi/float64(n)*(float64(col)+0.5)*float64(row)))
		}
	}
	return basis
}
