// Package rng provides the seeded pseudo-random stream used by the price
// generator. It is a 32-bit Mersenne Twister (MT19937) with 53-bit doubles
// and a polar Box-Muller normal sampler that caches its spare value, so a
// given seed always yields the same sequence of draws across runs and
// platforms.
//
// A Stream has a single owner and is not safe for concurrent use. Parallel
// simulations must each construct their own Stream.
package rng

import "math"

const (
	stateLen  = 624
	shift     = 397
	matrixA   = 0x9908b0df
	upperMask = 0x80000000
	lowerMask = 0x7fffffff
)

// Stream is a seeded MT19937 generator.
type Stream struct {
	mt  [stateLen]uint32
	pos int

	hasGauss bool
	gauss    float64
}

// New returns a stream seeded with seed.
func New(seed uint32) *Stream {
	s := &Stream{}
	s.Seed(seed)
	return s
}

// Seed resets the stream to the state derived from seed.
func (s *Stream) Seed(seed uint32) {
	s.mt[0] = seed
	for i := 1; i < stateLen; i++ {
		prev := s.mt[i-1]
		s.mt[i] = 1812433253*(prev^(prev>>30)) + uint32(i)
	}
	s.pos = stateLen
	s.hasGauss = false
	s.gauss = 0
}

func (s *Stream) twist() {
	var y uint32
	i := 0
	for ; i < stateLen-shift; i++ {
		y = (s.mt[i] & upperMask) | (s.mt[i+1] & lowerMask)
		s.mt[i] = s.mt[i+shift] ^ (y >> 1) ^ (-(y & 1) & matrixA)
	}
	for ; i < stateLen-1; i++ {
		y = (s.mt[i] & upperMask) | (s.mt[i+1] & lowerMask)
		s.mt[i] = s.mt[i+shift-stateLen] ^ (y >> 1) ^ (-(y & 1) & matrixA)
	}
	y = (s.mt[stateLen-1] & upperMask) | (s.mt[0] & lowerMask)
	s.mt[stateLen-1] = s.mt[shift-1] ^ (y >> 1) ^ (-(y & 1) & matrixA)
	s.pos = 0
}

// Uint32 returns the next tempered 32-bit output.
func (s *Stream) Uint32() uint32 {
	if s.pos == stateLen {
		s.twist()
	}
	y := s.mt[s.pos]
	s.pos++
	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

// Float64 returns a uniform double in [0, 1) built from two 32-bit outputs.
func (s *Stream) Float64() float64 {
	a := s.Uint32() >> 5
	b := s.Uint32() >> 6
	return (float64(a)*67108864.0 + float64(b)) / 9007199254740992.0
}

// StandardNormal draws from N(0, 1) using the polar method.
// Each accepted pair yields two values; the second is returned by the next call.
func (s *Stream) StandardNormal() float64 {
	if s.hasGauss {
		s.hasGauss = false
		v := s.gauss
		s.gauss = 0
		return v
	}
	var x1, x2, r2 float64
	for {
		x1 = 2.0*s.Float64() - 1.0
		x2 = 2.0*s.Float64() - 1.0
		r2 = x1*x1 + x2*x2
		if r2 < 1.0 && r2 != 0.0 {
			break
		}
	}
	f := math.Sqrt(-2.0 * math.Log(r2) / r2)
	s.gauss = f * x1
	s.hasGauss = true
	return f * x2
}

// Normal draws from N(loc, scale²).
func (s *Stream) Normal(loc, scale float64) float64 {
	return loc + scale*s.StandardNormal()
}

// LogNormal draws exp(N(mean, sigma²)).
func (s *Stream) LogNormal(mean, sigma float64) float64 {
	return math.Exp(s.Normal(mean, sigma))
}

// Uniform draws from [low, high).
func (s *Stream) Uniform(low, high float64) float64 {
	return low + (high-low)*s.Float64()
}

// StandardNormals fills a new slice with n standard normal draws.
func (s *Stream) StandardNormals(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.StandardNormal()
	}
	return out
}

// LogNormals fills a new slice with n log-normal draws.
func (s *Stream) LogNormals(n int, mean, sigma float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.LogNormal(mean, sigma)
	}
	return out
}

// Uniforms fills a new slice with n uniform draws from [low, high).
func (s *Stream) Uniforms(n int, low, high float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Uniform(low, high)
	}
	return out
}
