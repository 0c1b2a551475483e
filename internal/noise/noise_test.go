package noise

import (
	"math"
	"sync"
	"testing"
)

func terrainParams(seed int64) Params {
	return Params{
		Seed: seed,
		Octaves: []Octave{
			{Frequency: 0.01, Amplitude: 64},
			{Frequency: 0.1, Amplitude: 4},
		},
	}
}

func TestSample2DDeterministic(t *testing.T) {
	a := NewSampler(terrainParams(1234))
	b := NewSampler(terrainParams(1234))

	for x := -50; x <= 50; x += 7 {
		for y := -50; y <= 50; y += 11 {
			fx, fy := float64(x)*0.37, float64(y)*0.37
			if got, want := a.Sample2D(fx, fy), b.Sample2D(fx, fy); got != want {
				t.Fatalf("same seed diverged at (%g,%g): %v vs %v", fx, fy, got, want)
			}
		}
	}
}

func TestSample3DDeterministic(t *testing.T) {
	a := NewSampler(terrainParams(99))
	b := NewSampler(terrainParams(99))

	for i := 0; i < 200; i++ {
		x := float64(i) * 0.83
		y := float64(i*3%71) * 1.17
		z := float64(i*7%53) * 0.45
		if got, want := a.Sample3D(x, y, z), b.Sample3D(x, y, z); got != want {
			t.Fatalf("same seed diverged at (%g,%g,%g): %v vs %v", x, y, z, got, want)
		}
	}
}

func TestSeedChangesField(t *testing.T) {
	a := NewSampler(terrainParams(1))
	b := NewSampler(terrainParams(2))

	differs := false
	for i := 0; i < 64 && !differs; i++ {
		x, y := float64(i)*3.1, float64(i)*1.9
		if a.Sample2D(x, y) != b.Sample2D(x, y) {
			differs = true
		}
	}
	if !differs {
		t.Fatal("different seeds produced an identical field")
	}
}

func TestAmplitudeBound(t *testing.T) {
	s := NewSampler(terrainParams(5))
	// Unnormalized octave sum: output magnitude stays within the
	// amplitude total.
	limit := 64.0 + 4.0
	for i := 0; i < 500; i++ {
		x := float64(i)*2.3 - 500
		y := float64(i)*1.7 - 300
		if v := s.Sample2D(x, y); math.Abs(v) > limit {
			t.Fatalf("sample %v exceeds amplitude bound %v", v, limit)
		}
	}
}

func TestConcurrentSamplingMatchesSerial(t *testing.T) {
	s := NewSampler(terrainParams(42))

	const n = 256
	serial := make([]float64, n)
	for i := range serial {
		serial[i] = s.Sample3D(float64(i)*0.9, float64(i)*0.4, float64(i)*0.2)
	}

	parallel := make([]float64, n)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for i := start; i < n; i += 4 {
				parallel[i] = s.Sample3D(float64(i)*0.9, float64(i)*0.4, float64(i)*0.2)
			}
		}(w)
	}
	wg.Wait()

	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("sample %d differs between serial and concurrent evaluation", i)
		}
	}
}

func TestFractalBuildsOctaves(t *testing.T) {
	p := Fractal(7, 3, 0.01, 64, 0.5, 2)
	if p.Seed != 7 {
		t.Fatalf("seed %d, want 7", p.Seed)
	}
	want := []Octave{
		{Frequency: 0.01, Amplitude: 64},
		{Frequency: 0.02, Amplitude: 32},
		{Frequency: 0.04, Amplitude: 16},
	}
	if len(p.Octaves) != len(want) {
		t.Fatalf("octave count %d, want %d", len(p.Octaves), len(want))
	}
	for i, oct := range p.Octaves {
		if math.Abs(oct.Frequency-want[i].Frequency) > 1e-12 || oct.Amplitude != want[i].Amplitude {
			t.Fatalf("octave %d = %+v, want %+v", i, oct, want[i])
		}
	}
}
