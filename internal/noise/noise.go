package noise

import "math"

// Octave is one layer of the fractal sum: value noise sampled at
// Frequency and scaled by Amplitude.
type Octave struct {
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Amplitude float64 `yaml:"amplitude" json:"amplitude"`
}

// Params configures a sampler. Octaves are summed without
// normalization so amplitudes carry through to the output range.
type Params struct {
	Seed    int64    `yaml:"seed" json:"seed"`
	Octaves []Octave `yaml:"octaves" json:"octaves"`
}

// Fractal builds octave parameters the conventional way: frequency
// multiplied by lacunarity and amplitude by persistence per octave.
func Fractal(seed int64, octaves int, frequency, amplitude, persistence, lacunarity float64) Params {
	p := Params{Seed: seed, Octaves: make([]Octave, 0, octaves)}
	for i := 0; i < octaves; i++ {
		p.Octaves = append(p.Octaves, Octave{Frequency: frequency, Amplitude: amplitude})
		frequency *= lacunarity
		amplitude *= persistence
	}
	return p
}

// Sampler evaluates layered hashed value noise. It holds no mutable
// state, so concurrent per-coordinate evaluation needs no coordination.
type Sampler struct {
	params Params
}

// NewSampler creates a sampler for the given parameters.
func NewSampler(params Params) *Sampler {
	return &Sampler{params: params}
}

// Sample2D returns the layered noise value at a 2D coordinate.
func (s *Sampler) Sample2D(x, y float64) float64 {
	sum := 0.0
	for _, oct := range s.params.Octaves {
		sum += oct.Amplitude * s.valueNoise2D(x*oct.Frequency, y*oct.Frequency)
	}
	return sum
}

// Sample3D returns the layered noise value at a 3D coordinate.
func (s *Sampler) Sample3D(x, y, z float64) float64 {
	sum := 0.0
	for _, oct := range s.params.Octaves {
		sum += oct.Amplitude * s.valueNoise3D(x*oct.Frequency, y*oct.Frequency, z*oct.Frequency)
	}
	return sum
}

func (s *Sampler) valueNoise2D(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1

	sx := smooth(x - float64(x0))
	sy := smooth(y - float64(y0))

	n0 := random2D(x0, y0, s.params.Seed)
	n1 := random2D(x1, y0, s.params.Seed)
	ix0 := lerp(n0, n1, sx)

	n2 := random2D(x0, y1, s.params.Seed)
	n3 := random2D(x1, y1, s.params.Seed)
	ix1 := lerp(n2, n3, sx)

	return lerp(ix0, ix1, sy)
}

func (s *Sampler) valueNoise3D(x, y, z float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	z0 := int(math.Floor(z))

	sx := smooth(x - float64(x0))
	sy := smooth(y - float64(y0))
	sz := smooth(z - float64(z0))

	lerpX := func(y, z int) float64 {
		return lerp(random3D(x0, y, z, s.params.Seed), random3D(x0+1, y, z, s.params.Seed), sx)
	}
	ix00 := lerpX(y0, z0)
	ix10 := lerpX(y0+1, z0)
	ix01 := lerpX(y0, z0+1)
	ix11 := lerpX(y0+1, z0+1)

	iy0 := lerp(ix00, ix10, sy)
	iy1 := lerp(ix01, ix11, sy)
	return lerp(iy0, iy1, sz)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func random2D(x, y int, seed int64) float64 {
	return float64(hash3(x, y, int(seed))&0xFFFF)/0x8000 - 1.0
}

func random3D(x, y, z int, seed int64) float64 {
	return float64(hash4(x, y, z, int(seed))&0xFFFF)/0x8000 - 1.0
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

func hash4(x, y, z, w int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*1274126177 + w*2147483647)
	h = (h ^ (h >> 13)) * 374761393
	return h ^ (h >> 16)
}
