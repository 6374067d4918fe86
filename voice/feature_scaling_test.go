package voice

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFitLengthPadsAndTruncates(t *testing.T) {
	t.Parallel()

	const n = 34
	for _, l := range []int{0, 1, 28, 30, 34, 35, 60} {
		in := make([]float64, l)
		for i := range in {
			in[i] = float64(i + 1)
		}

		out := FitLength(in, n)
		if len(out) != n {
			t.Fatalf("L=%d: expected length %d, got %d", l, n, len(out))
		}
		for i := 0; i < n; i++ {
			want := 0.0
			if i < l {
				want = float64(i + 1)
			}
			if out[i] != want {
				t.Fatalf("L=%d: element %d = %v, want %v", l, i, out[i], want)
			}
		}
	}
}

func TestFitLengthDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []float64{1, 2, 3}
	out := FitLength(in, 2)
	out[0] = 99
	if in[0] != 1 {
		t.Fatalf("input was mutated: %v", in)
	}
}

func TestNormalizerPadsBeforeScaling(t *testing.T) {
	t.Parallel()

	scaler := identityScaler(DefaultFeatureLength)
	for i := range scaler.Mean {
		scaler.Mean[i] = 1
		scaler.Stddev[i] = 2
	}
	n := Normalizer{Length: DefaultFeatureLength, Scaler: scaler}

	in := make([]float64, 30)
	for i := range in {
		in[i] = 5
	}
	out := n.Normalize(in)

	if len(out) != DefaultFeatureLength {
		t.Fatalf("expected %d features, got %d", DefaultFeatureLength, len(out))
	}
	for i := 0; i < 30; i++ {
		if out[i] != 2 {
			t.Fatalf("feature %d: expected (5-1)/2=2, got %v", i, out[i])
		}
	}
	// the four padded zeros are scaled like any other value
	for i := 30; i < DefaultFeatureLength; i++ {
		if out[i] != -0.5 {
			t.Fatalf("padded feature %d: expected (0-1)/2=-0.5, got %v", i, out[i])
		}
	}
}

func TestNormalizerWithoutScaler(t *testing.T) {
	t.Parallel()

	out := Normalizer{Length: 4}.Normalize([]float64{1, 2, 3, 4, 5, 6})
	if len(out) != 4 || out[3] != 4 {
		t.Fatalf("unexpected output %v", out)
	}
}

func TestLoadFeatureScaler(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "scaler.json")
	if err := os.WriteFile(path, []byte(`{"mean":[1,2,3],"stddev":[1,0,2]}`), 0o644); err != nil {
		t.Fatalf("write scaler: %v", err)
	}

	scaler, err := LoadFeatureScaler(path, 3)
	if err != nil {
		t.Fatalf("LoadFeatureScaler: %v", err)
	}
	if scaler.Stddev[1] != 1 {
		t.Fatalf("zero stddev should be replaced by 1, got %v", scaler.Stddev[1])
	}

	if _, err := LoadFeatureScaler(path, 34); err == nil {
		t.Fatalf("expected a length mismatch error")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"mean":[1,2],"stddev":[1]}`), 0o644); err != nil {
		t.Fatalf("write scaler: %v", err)
	}
	if _, err := LoadFeatureScaler(bad, 0); err == nil {
		t.Fatalf("expected mean/stddev mismatch error")
	}
}
