// Package vecindex implements in-memory vector similarity indexes: an
// exact brute-force variant and an inverted-file approximate variant for
// larger corpora. Distances are squared Euclidean; neighbors come back
// in ascending distance order.
package vecindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

const (
	TypeFlat = "flat"
	TypeIVF  = "ivf"
)

// ErrNotTrained is returned when vectors are added to or searched in an
// approximate index before Train has been called.
var ErrNotTrained = errors.New("vecindex: ivf index is not trained")

// ConfigError reports an index configuration the corpus cannot satisfy,
// e.g. more IVF clusters than training vectors. It is never silently
// downgraded to a different variant.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "vecindex: " + e.Reason
}

// Hit is one nearest-neighbor result: the row index assigned at Add time
// and the squared Euclidean distance to the query.
type Hit struct {
	Row      int
	Distance float32
}

// Index is a vector similarity index. Row indices are assigned
// sequentially by Add and are stable until the index is discarded;
// rebuilds construct a fresh index rather than mutating in place.
type Index interface {
	// Add appends vectors, assigning row indices previousCount,
	// previousCount+1, ...
	Add(vectors [][]float32) error
	// Search returns up to k nearest neighbors in ascending distance
	// order. An empty index returns no hits and no error.
	Search(query []float32, k int) ([]Hit, error)
	Count() int
	Dimension() int
	Type() string
	// WriteFile persists the index in its native binary form.
	WriteFile(path string) error
}

// file framing shared by both variants
const (
	fileMagic   = "CDXV"
	fileVersion = uint32(1)

	kindFlat = byte(0)
	kindIVF  = byte(1)
)

// ReadFile restores an index persisted by WriteFile, detecting the
// variant from the file header.
func ReadFile(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}
	if len(data) < 9 || string(data[:4]) != fileMagic {
		return nil, fmt.Errorf("index file %s: bad header", path)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != fileVersion {
		return nil, fmt.Errorf("index file %s: unsupported version %d", path, v)
	}

	body := data[9:]
	switch data[8] {
	case kindFlat:
		return readFlat(body)
	case kindIVF:
		return readIVF(body)
	default:
		return nil, fmt.Errorf("index file %s: unknown index kind %d", path, data[8])
	}
}

func writeHeader(buf []byte, kind byte) []byte {
	buf = append(buf, fileMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, fileVersion)
	return append(buf, kind)
}

// l2Squared computes the squared Euclidean distance between two vectors
// of equal length.
func l2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func appendVector(buf []byte, vec []float32) []byte {
	for _, v := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

// vectorReader decodes the little-endian payload produced by
// appendVector and the uint32 framing around it.
type vectorReader struct {
	data []byte
	off  int
}

func (r *vectorReader) uint32() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, errors.New("vecindex: truncated index file")
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *vectorReader) vector(dim int) ([]float32, error) {
	if r.off+dim*4 > len(r.data) {
		return nil, errors.New("vecindex: truncated index file")
	}
	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.off:]))
		r.off += 4
	}
	return vec, nil
}

// topK keeps results sorted ascending by distance and truncated to k.
func topK(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func checkQuery(query []float32, dim, k int) error {
	if len(query) == 0 {
		return errors.New("vecindex: query vector is empty")
	}
	if k <= 0 {
		return errors.New("vecindex: k must be positive")
	}
	if dim != 0 && len(query) != dim {
		return fmt.Errorf("vecindex: query dimension %d does not match index dimension %d", len(query), dim)
	}
	return nil
}
