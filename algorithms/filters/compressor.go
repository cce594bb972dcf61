package filters

import (
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/sonido-listen/algorithms/common"
)

// envelopeFloorDB is the level the detector rests at in silence
const envelopeFloorDB = -120.0

// CompressorParams configures a feed-forward dynamic range compressor
type CompressorParams struct {
	ThresholdDB float64       `json:"threshold_db" yaml:"threshold_db"` // Level above which gain is reduced
	Ratio       float64       `json:"ratio" yaml:"ratio"`               // Input:output slope above threshold
	Attack      time.Duration `json:"attack" yaml:"attack"`             // Time constant for rising levels
	Release     time.Duration `json:"release" yaml:"release"`           // Time constant for falling levels
	MakeupDB    float64       `json:"makeup_db" yaml:"makeup_db"`       // Fixed output gain; ignored when AutoMakeup is set
	AutoMakeup  bool          `json:"auto_makeup" yaml:"auto_makeup"`   // Derive makeup gain from threshold and ratio
}

// DefaultCompressorParams returns settings suited to percussive sources such
// as an acoustic piano: fast attack, slow release, heavy ratio, low threshold.
func DefaultCompressorParams() CompressorParams {
	return CompressorParams{
		ThresholdDB: -40,
		Ratio:       8,
		Attack:      2 * time.Millisecond,
		Release:     150 * time.Millisecond,
		AutoMakeup:  true,
	}
}

// Validate reports parameters the compressor cannot run with
func (p CompressorParams) Validate() error {
	if p.Ratio < 1 {
		return fmt.Errorf("compressor: ratio must be >= 1: %g", p.Ratio)
	}
	if p.ThresholdDB > 0 {
		return fmt.Errorf("compressor: threshold must be <= 0 dBFS: %g", p.ThresholdDB)
	}
	if p.Attack < 0 || p.Release < 0 {
		return fmt.Errorf("compressor: attack and release must not be negative")
	}
	return nil
}

// Compressor reduces the level of loud passages and, with makeup gain, lifts
// the decaying tail of a note so it stays above detection floors for longer.
// Gain is applied per sample and never alters frequency content.
type Compressor struct {
	params      CompressorParams
	sampleRate  int
	attackCoef  float64
	releaseCoef float64
	makeupGain  float64

	envelopeDB float64
}

// NewCompressor creates a compressor for the given sample rate
func NewCompressor(sampleRate int, params CompressorParams) (*Compressor, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("compressor: sample rate must be positive: %d", sampleRate)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	c := &Compressor{
		params:      params,
		sampleRate:  sampleRate,
		attackCoef:  timeConstant(params.Attack, sampleRate),
		releaseCoef: timeConstant(params.Release, sampleRate),
		envelopeDB:  envelopeFloorDB,
	}

	makeupDB := params.MakeupDB
	if params.AutoMakeup {
		makeupDB = autoMakeupDB(params.ThresholdDB, params.Ratio)
	}
	c.makeupGain = math.Pow(10, makeupDB/20)

	return c, nil
}

// timeConstant converts a duration into a one-pole smoothing coefficient
func timeConstant(d time.Duration, sampleRate int) float64 {
	if d <= 0 {
		return 0
	}
	return math.Exp(-1.0 / (d.Seconds() * float64(sampleRate)))
}

// autoMakeupDB restores part of the gain lost by a full-scale signal, using
// the same 0.6 exponent as the Web Audio DynamicsCompressorNode.
func autoMakeupDB(thresholdDB, ratio float64) float64 {
	fullScaleGainDB := thresholdDB * (1 - 1/ratio)
	return -0.6 * fullScaleGainDB
}

// Process compresses a single sample
func (c *Compressor) Process(input float64) float64 {
	levelDB := common.DBFS(math.Abs(input), envelopeFloorDB)

	coef := c.releaseCoef
	if levelDB > c.envelopeDB {
		coef = c.attackCoef
	}
	c.envelopeDB = coef*c.envelopeDB + (1-coef)*levelDB

	return input * c.Gain()
}

// ProcessBuffer compresses buf in place
func (c *Compressor) ProcessBuffer(buf []float64) {
	for i, sample := range buf {
		buf[i] = c.Process(sample)
	}
}

// Gain returns the linear gain the compressor currently applies, makeup included
func (c *Compressor) Gain() float64 {
	reductionDB := 0.0
	if over := c.envelopeDB - c.params.ThresholdDB; over > 0 {
		reductionDB = -over * (1 - 1/c.params.Ratio)
	}
	return math.Pow(10, reductionDB/20) * c.makeupGain
}

// MakeupGain returns the linear makeup gain
func (c *Compressor) MakeupGain() float64 {
	return c.makeupGain
}

// Reset returns the envelope detector to silence
func (c *Compressor) Reset() {
	c.envelopeDB = envelopeFloorDB
}
