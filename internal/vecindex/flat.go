package vecindex

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Flat is the exact variant: brute-force distance computation against
// every stored vector. Correct at any corpus size; linear query cost.
type Flat struct {
	dim     int
	vectors [][]float32
}

// NewFlat creates an empty exact index. The dimension is fixed by the
// first Add.
func NewFlat() *Flat {
	return &Flat{}
}

func (f *Flat) Add(vectors [][]float32) error {
	for _, vec := range vectors {
		if len(vec) == 0 {
			return fmt.Errorf("vecindex: cannot add empty vector")
		}
		if f.dim == 0 {
			f.dim = len(vec)
		}
		if len(vec) != f.dim {
			return fmt.Errorf("vecindex: vector dimension %d does not match index dimension %d", len(vec), f.dim)
		}
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(f.vectors) == 0 {
		return nil, nil
	}
	if err := checkQuery(query, f.dim, k); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(f.vectors))
	for row, vec := range f.vectors {
		hits = append(hits, Hit{Row: row, Distance: l2Squared(query, vec)})
	}
	return topK(hits, k), nil
}

func (f *Flat) Count() int {
	return len(f.vectors)
}

func (f *Flat) Dimension() int {
	return f.dim
}

func (f *Flat) Type() string {
	return TypeFlat
}

// WriteFile persists the index: header, dimension, count, then the raw
// vectors row by row.
func (f *Flat) WriteFile(path string) error {
	buf := writeHeader(make([]byte, 0, 16+len(f.vectors)*f.dim*4), kindFlat)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(f.dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f.vectors)))
	for _, vec := range f.vectors {
		buf = appendVector(buf, vec)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write flat index: %w", err)
	}
	return nil
}

func readFlat(body []byte) (*Flat, error) {
	r := &vectorReader{data: body}
	dim, err := r.uint32()
	if err != nil {
		return nil, err
	}
	count, err := r.uint32()
	if err != nil {
		return nil, err
	}

	f := &Flat{dim: int(dim), vectors: make([][]float32, 0, count)}
	for i := uint32(0); i < count; i++ {
		vec, err := r.vector(int(dim))
		if err != nil {
			return nil, err
		}
		f.vectors = append(f.vectors, vec)
	}
	return f, nil
}
