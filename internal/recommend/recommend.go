// Package recommend ranks the articles most similar to a source article from a
// precomputed similarity matrix.
package recommend

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

const DefaultK = 5

var (
	ErrIndexOutOfRange = errors.New("source index out of range")
	ErrMalformedMatrix = errors.New("malformed similarity matrix")
)

type Match struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Recommend returns up to k entries most similar to sourceIndex, best first.
// The source itself is never returned. Equal scores keep ascending index
// order, and NaN scores sort last. A k of zero or less means DefaultK.
func Recommend(sourceIndex int, titles []string, matrix [][]float64, k int) ([]Match, error) {
	if sourceIndex < 0 || sourceIndex >= len(titles) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, sourceIndex, len(titles))
	}
	if err := checkMatrix(matrix, len(titles)); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultK
	}

	row := matrix[sourceIndex]
	matches := make([]Match, 0, len(titles)-1)
	for i := range titles {
		if i == sourceIndex {
			continue
		}
		matches = append(matches, Match{Index: i, Score: row[i]})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		aNaN, bNaN := math.IsNaN(a.Score), math.IsNaN(b.Score)
		switch {
		case aNaN && bNaN:
			return 0
		case aNaN:
			return 1
		case bNaN:
			return -1
		}
		return cmp.Compare(b.Score, a.Score)
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func checkMatrix(matrix [][]float64, items int) error {
	n := len(matrix)
	if n < items {
		return fmt.Errorf("%w: %d rows for %d titles", ErrMalformedMatrix, n, items)
	}
	for i, row := range matrix {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d columns, expected %d", ErrMalformedMatrix, i, len(row), n)
		}
	}
	return nil
}

// CosineMatrix returns the pairwise cosine similarity of the given vectors.
// Zero vectors score 0 against everything, themselves included.
func CosineMatrix(vectors [][]float32) ([][]float64, error) {
	n := len(vectors)
	if n == 0 {
		return [][]float64{}, nil
	}
	dims := len(vectors[0])
	if dims == 0 {
		return nil, fmt.Errorf("%w: vectors have no dimensions", ErrMalformedMatrix)
	}

	data := mat.NewDense(n, dims, nil)
	for i, vector := range vectors {
		if len(vector) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrMalformedMatrix, i, len(vector), dims)
		}
		row := make([]float64, dims)
		for j, value := range vector {
			row[j] = float64(value)
		}
		norm := mat.Norm(mat.NewVecDense(dims, row), 2)
		if norm > 0 {
			for j := range row {
				row[j] /= norm
			}
		}
		data.SetRow(i, row)
	}

	var product mat.Dense
	product.Mul(data, data.T())

	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, &product)
	}
	return out, nil
}
