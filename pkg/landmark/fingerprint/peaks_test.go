package fingerprint

import (
	"testing"
)

func TestFindLocalMaxima(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		want []Peak
	}{
		{
			name: "plateaus report their first bin",
			data: []float64{1, 3, 3, 2, 5, 5, 5, 1},
			want: []Peak{{Index: 1, Value: 3}, {Index: 4, Value: 5}},
		},
		{
			name: "rising tail is not a peak",
			data: []float64{1, 2, 3},
			want: nil,
		},
		{
			name: "falling start peaks at bin zero",
			data: []float64{5, 4, 3},
			want: []Peak{{Index: 0, Value: 5}},
		},
		{
			name: "plateau after a fall is not a peak",
			data: []float64{3, 2, 2, 1},
			want: []Peak{{Index: 0, Value: 3}},
		},
		{
			name: "unresolved plateau at the end",
			data: []float64{1, 4, 2, 6, 6},
			want: []Peak{{Index: 1, Value: 4}},
		},
		{
			name: "negative residuals",
			data: []float64{-90, -80, -95, -70, -71},
			want: []Peak{{Index: 1, Value: -80}, {Index: 3, Value: -70}},
		},
		{
			name: "empty",
			data: nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindLocalMaxima(tt.data, nil)
			if len(got) != len(tt.want) {
				t.Fatalf("FindLocalMaxima(%v) = %v, want %v", tt.data, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("peak %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFindLocalMaximaAppends(t *testing.T) {
	dst := make([]Peak, 0, 8)
	dst = append(dst, Peak{Index: 99, Value: 1})

	dst = FindLocalMaxima([]float64{0, 1, 0}, dst)

	if len(dst) != 2 {
		t.Fatalf("expected 2 peaks, got %d", len(dst))
	}
	if dst[0].Index != 99 || dst[1].Index != 1 {
		t.Errorf("unexpected peaks %v", dst)
	}
}

func TestSelectPeaks(t *testing.T) {
	peaks := []Peak{
		{Index: 2, Value: 1},
		{Index: 5, Value: 9},
		{Index: 7, Value: 4},
		{Index: 9, Value: 8},
		{Index: 12, Value: 2},
	}

	got := SelectPeaks(peaks, 3)

	want := []Peak{{Index: 5, Value: 9}, {Index: 7, Value: 4}, {Index: 9, Value: 8}}
	if len(got) != len(want) {
		t.Fatalf("SelectPeaks returned %d peaks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("peak %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSelectPeaksTiesKeepScanOrder(t *testing.T) {
	peaks := []Peak{
		{Index: 1, Value: 3},
		{Index: 4, Value: 3},
		{Index: 6, Value: 3},
	}

	got := SelectPeaks(peaks, 2)

	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 4 {
		t.Errorf("expected bins 1 and 4, got %v", got)
	}
}

func TestSelectPeaksFewerThanLimit(t *testing.T) {
	peaks := []Peak{{Index: 8, Value: 1}, {Index: 3, Value: 2}}

	got := SelectPeaks(peaks, 5)

	if len(got) != 2 || got[0].Index != 3 || got[1].Index != 8 {
		t.Errorf("expected bins 3 and 8 in order, got %v", got)
	}
	if len(SelectPeaks(nil, 3)) != 0 {
		t.Error("expected no peaks from empty input")
	}
}
