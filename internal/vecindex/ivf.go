package vecindex

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"sort"
)

// fixed seed keeps Train deterministic for a fixed sample
const ivfTrainSeed = 42

// IVF is the approximate variant: vectors are partitioned into nlist
// clusters by a k-means train step, and queries probe only the nprobe
// closest clusters. Train must run on a representative sample before
// the first Add.
type IVF struct {
	dim     int
	nlist   int // 0 until Train when auto-scaled
	nprobe  int
	trained bool

	centroids [][]float32
	lists     []ivfList
	count     int
}

type ivfList struct {
	rows    []int
	vectors [][]float32
}

// NewIVF creates an untrained approximate index. nlist of 0 scales the
// cluster count with the training corpus (min(100, max(1, n/10))); an
// explicit nlist larger than the training corpus is a configuration
// error at Train time. nprobe defaults to 4.
func NewIVF(nlist, nprobe int) *IVF {
	if nprobe <= 0 {
		nprobe = 4
	}
	return &IVF{nlist: nlist, nprobe: nprobe}
}

// AutoNList is the cluster count used when none is configured: scales
// with corpus size but stays bounded so tiny corpora remain valid.
func AutoNList(corpusSize int) int {
	n := corpusSize / 10
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	return n
}

// Train runs k-means over the sample to fix the cluster centroids.
func (ix *IVF) Train(sample [][]float32) error {
	if len(sample) == 0 {
		return &ConfigError{Reason: "cannot train ivf index on an empty sample"}
	}
	dim := len(sample[0])
	for _, vec := range sample {
		if len(vec) != dim {
			return fmt.Errorf("vecindex: training sample has mixed dimensions")
		}
	}

	nlist := ix.nlist
	if nlist == 0 {
		nlist = AutoNList(len(sample))
	}
	if nlist > len(sample) {
		return &ConfigError{
			Reason: fmt.Sprintf("ivf cluster count %d exceeds training corpus size %d", nlist, len(sample)),
		}
	}

	centroids := trainKMeans(sample, nlist, 10)

	ix.dim = dim
	ix.nlist = nlist
	ix.centroids = centroids
	ix.lists = make([]ivfList, nlist)
	ix.trained = true
	return nil
}

func (ix *IVF) Add(vectors [][]float32) error {
	if !ix.trained {
		return ErrNotTrained
	}
	for _, vec := range vectors {
		if len(vec) != ix.dim {
			return fmt.Errorf("vecindex: vector dimension %d does not match index dimension %d", len(vec), ix.dim)
		}
		list := ix.nearestCentroid(vec)
		ix.lists[list].rows = append(ix.lists[list].rows, ix.count)
		ix.lists[list].vectors = append(ix.lists[list].vectors, vec)
		ix.count++
	}
	return nil
}

func (ix *IVF) Search(query []float32, k int) ([]Hit, error) {
	if !ix.trained {
		return nil, ErrNotTrained
	}
	if ix.count == 0 {
		return nil, nil
	}
	if err := checkQuery(query, ix.dim, k); err != nil {
		return nil, err
	}

	probed := ix.closestLists(query, ix.nprobe)
	var hits []Hit
	for _, li := range probed {
		list := &ix.lists[li]
		for i, vec := range list.vectors {
			hits = append(hits, Hit{Row: list.rows[i], Distance: l2Squared(query, vec)})
		}
	}
	return topK(hits, k), nil
}

func (ix *IVF) Count() int {
	return ix.count
}

func (ix *IVF) Dimension() int {
	return ix.dim
}

func (ix *IVF) Type() string {
	return TypeIVF
}

func (ix *IVF) nearestCentroid(vec []float32) int {
	best := 0
	bestDist := l2Squared(vec, ix.centroids[0])
	for i := 1; i < len(ix.centroids); i++ {
		if d := l2Squared(vec, ix.centroids[i]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (ix *IVF) closestLists(query []float32, nprobe int) []int {
	type listDist struct {
		list int
		dist float32
	}
	dists := make([]listDist, len(ix.centroids))
	for i, c := range ix.centroids {
		dists[i] = listDist{list: i, dist: l2Squared(query, c)}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })
	if nprobe > len(dists) {
		nprobe = len(dists)
	}
	out := make([]int, nprobe)
	for i := 0; i < nprobe; i++ {
		out[i] = dists[i].list
	}
	return out
}

// trainKMeans is Lloyd's algorithm with deterministic seeding. Empty
// clusters are reseeded from a random sample vector.
func trainKMeans(vectors [][]float32, k, maxIter int) [][]float32 {
	rng := rand.New(rand.NewSource(ivfTrainSeed))
	dim := len(vectors[0])

	centroids := make([][]float32, k)
	chosen := make(map[int]struct{}, k)
	for i := 0; i < k; i++ {
		for {
			idx := rng.Intn(len(vectors))
			if _, ok := chosen[idx]; ok {
				continue
			}
			chosen[idx] = struct{}{}
			centroids[i] = append([]float32(nil), vectors[idx]...)
			break
		}
	}

	assign := make([]int, len(vectors))
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, vec := range vectors {
			best := 0
			bestDist := l2Squared(vec, centroids[0])
			for c := 1; c < k; c++ {
				if d := l2Squared(vec, centroids[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := 0; c < k; c++ {
			sums[c] = make([]float64, dim)
		}
		for i, vec := range vectors {
			c := assign[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += float64(vec[d])
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				centroids[c] = append([]float32(nil), vectors[rng.Intn(len(vectors))]...)
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}
	return centroids
}

// WriteFile persists the trained index: header, dimensions and cluster
// shape, centroids, then each list's rows and vectors.
func (ix *IVF) WriteFile(path string) error {
	if !ix.trained {
		return ErrNotTrained
	}
	buf := writeHeader(nil, kindIVF)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ix.dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ix.nlist))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ix.nprobe))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ix.count))
	for _, c := range ix.centroids {
		buf = appendVector(buf, c)
	}
	for _, list := range ix.lists {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(list.rows)))
		for _, row := range list.rows {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(row))
		}
		for _, vec := range list.vectors {
			buf = appendVector(buf, vec)
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write ivf index: %w", err)
	}
	return nil
}

func readIVF(body []byte) (*IVF, error) {
	r := &vectorReader{data: body}
	dim, err := r.uint32()
	if err != nil {
		return nil, err
	}
	nlist, err := r.uint32()
	if err != nil {
		return nil, err
	}
	nprobe, err := r.uint32()
	if err != nil {
		return nil, err
	}
	count, err := r.uint32()
	if err != nil {
		return nil, err
	}

	ix := &IVF{
		dim:     int(dim),
		nlist:   int(nlist),
		nprobe:  int(nprobe),
		trained: true,
		count:   int(count),
	}
	ix.centroids = make([][]float32, nlist)
	for i := range ix.centroids {
		if ix.centroids[i], err = r.vector(int(dim)); err != nil {
			return nil, err
		}
	}
	ix.lists = make([]ivfList, nlist)
	for i := range ix.lists {
		size, err := r.uint32()
		if err != nil {
			return nil, err
		}
		list := ivfList{
			rows:    make([]int, size),
			vectors: make([][]float32, size),
		}
		for j := uint32(0); j < size; j++ {
			row, err := r.uint32()
			if err != nil {
				return nil, err
			}
			list.rows[j] = int(row)
		}
		for j := uint32(0); j < size; j++ {
			if list.vectors[j], err = r.vector(int(dim)); err != nil {
				return nil, err
			}
		}
		ix.lists[i] = list
	}
	return ix, nil
}
