package ml

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each feature column to zero mean and unit variance.
// Constant columns pass through unscaled.
type StandardScaler struct {
	Means   []float64
	Stddevs []float64
}

func fitScaler(matrix [][]float64) (*StandardScaler, error) {
	if len(matrix) == 0 {
		return nil, errors.New("empty training matrix")
	}
	dims := len(matrix[0])
	s := &StandardScaler{
		Means:   make([]float64, dims),
		Stddevs: make([]float64, dims),
	}

	column := make([]float64, len(matrix))
	for d := 0; d < dims; d++ {
		for i, row := range matrix {
			column[i] = row[d]
		}
		s.Means[d] = stat.Mean(column, nil)
		s.Stddevs[d] = stat.PopStdDev(column, nil)
	}
	return s, nil
}

// Transform returns the z-scored copy of one feature vector.
func (s *StandardScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for d, v := range row {
		if d < len(s.Means) {
			if s.Stddevs[d] > 0 {
				out[d] = (v - s.Means[d]) / s.Stddevs[d]
			} else {
				out[d] = v - s.Means[d]
			}
		} else {
			out[d] = v
		}
	}
	return out
}

// TransformAll z-scores a whole matrix.
func (s *StandardScaler) TransformAll(matrix [][]float64) [][]float64 {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		out[i] = s.Transform(row)
	}
	return out
}
