package clustering

import (
	"errors"
	"math"
	"testing"
)

func TestFromRows(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]float64
		wantErr error
	}{
		{name: "ok", rows: [][]float64{{1, 0}, {0, 1}}},
		{name: "empty", rows: nil, wantErr: ErrEmptyInput},
		{name: "zero width", rows: [][]float64{{}}, wantErr: ErrEmptyInput},
		{name: "ragged", rows: [][]float64{{1, 0}, {1}}, wantErr: ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := FromRows(tt.rows)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r, c := x.Dims(); r != len(tt.rows) || c != len(tt.rows[0]) {
				t.Fatalf("dims = %dx%d", r, c)
			}
		})
	}
}

func TestCosineDistances(t *testing.T) {
	x, err := FromRows([][]float64{
		{1, 0},
		{0, 1},
		{-1, 0},
		{0, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	d := CosineDistances(x)

	cases := []struct {
		i, j int
		want float64
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0, 2, 2},
		{1, 0, 1},
		{3, 0, 1},
		{3, 3, 0},
	}
	for _, c := range cases {
		if got := d.At(c.i, c.j); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("d(%d,%d) = %v, want %v", c.i, c.j, got, c.want)
		}
	}
}

func TestCentroid(t *testing.T) {
	x, _ := FromRows([][]float64{{1, 0}, {0, 1}, {5, 5}})
	c := Centroid(x, []int{0, 1})
	if c[0] != 0.5 || c[1] != 0.5 {
		t.Fatalf("centroid = %v", c)
	}
	if empty := Centroid(x, nil); empty[0] != 0 || empty[1] != 0 {
		t.Fatalf("empty centroid = %v", empty)
	}
}

func TestMeanSquaredError(t *testing.T) {
	x, _ := FromRows([][]float64{{0, 0}, {2, 0}, {5, 5}, {9, 9}})
	mse, ok := MeanSquaredError(x, []int{0, 0, 1, -1})
	if !ok {
		t.Fatal("expected clusters")
	}
	// cluster 0: centroid (1,0), squared distances 1 and 1; cluster 1: 0.
	if math.Abs(mse-0.5) > 1e-12 {
		t.Fatalf("mse = %v, want 0.5", mse)
	}
	if _, ok := MeanSquaredError(x, []int{-1, -1, -1, -1}); ok {
		t.Fatal("noise-only labels reported clusters")
	}
}
