package audio

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"
)

func TestBytesToSamples(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    []int16
		wantErr error
	}{
		{name: "empty", data: []byte{}, want: []int16{}},
		{name: "little endian", data: []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}, want: []int16{1, -1, math.MinInt16}},
		{name: "odd length", data: []byte{0x01}, wantErr: ErrMisalignedPCM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BytesToSamples(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("BytesToSamples() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && !slices.Equal(got, tt.want) {
				t.Errorf("BytesToSamples() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, math.MaxInt16, math.MinInt16}
	back, err := BytesToSamples(SamplesToBytes(samples))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(back, samples) {
		t.Errorf("got %v, want %v", back, samples)
	}
}

func TestFloatToInt16(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 2, -2}
	want := []int16{0, 32767, -32767, 16383, 32767, -32768}

	got := FloatToInt16(in)
	if !slices.Equal(got, want) {
		t.Errorf("FloatToInt16() = %v, want %v", got, want)
	}
}

func TestSamplesDuration(t *testing.T) {
	tests := []struct {
		n, rate int
		want    time.Duration
	}{
		{n: 16000, rate: 16000, want: time.Second},
		{n: 48000, rate: 16000, want: 3 * time.Second},
		{n: 100, rate: 0, want: 0},
	}
	for _, tt := range tests {
		if got := SamplesDuration(tt.n, tt.rate); got != tt.want {
			t.Errorf("SamplesDuration(%d, %d) = %v, want %v", tt.n, tt.rate, got, tt.want)
		}
	}

	if got := len(Silence(250*time.Millisecond, 16000)); got != 4000 {
		t.Errorf("Silence length = %d, want 4000", got)
	}
}

func TestResample(t *testing.T) {
	in := []int16{0, 100, 200, 300}

	if got := Resample(in, 16000, 16000); !slices.Equal(got, in) {
		t.Errorf("same rate changed samples: %v", got)
	}

	up := Resample(in, 1, 2)
	if len(up) != 8 {
		t.Fatalf("upsampled length = %d, want 8", len(up))
	}
	if up[1] != 50 || up[2] != 100 {
		t.Errorf("interpolation wrong: %v", up)
	}

	down := Resample(in, 2, 1)
	if !slices.Equal(down, []int16{0, 200}) {
		t.Errorf("downsampled = %v, want [0 200]", down)
	}
}
