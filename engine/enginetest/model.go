package enginetest

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/viant/vec/search"
)

const (
	svmOneClass   = 2
	svmEpsilonSVR = 3
	svmNuSVR      = 4
)

var modelMagic = [4]byte{'E', 'T', 'S', 'M'}

// model is a trained nearest-neighbour model.
type model struct {
	svmType     int32
	probability bool
	dim         int
	rows        [][]float32
	labels      []float64
	classes     []float64 // distinct labels in order of first appearance
	lower       []float32
	upper       []float32
}

func newModel(svmType int32, probability bool, dim int, rows [][]float32, labels []float64) *model {
	m := &model{
		svmType:     svmType,
		probability: probability,
		dim:         dim,
		rows:        rows,
		labels:      labels,
	}
	m.index()
	return m
}

func (m *model) index() {
	m.classes = nil
	seen := make(map[float64]bool)
	for _, l := range m.labels {
		if !seen[l] {
			seen[l] = true
			m.classes = append(m.classes, l)
		}
	}
	m.lower = make([]float32, m.dim)
	m.upper = make([]float32, m.dim)
	for j := 0; j < m.dim; j++ {
		m.lower[j] = float32(math.Inf(1))
		m.upper[j] = float32(math.Inf(-1))
	}
	for _, row := range m.rows {
		for j, v := range row {
			m.lower[j] = min(m.lower[j], v)
			m.upper[j] = max(m.upper[j], v)
		}
	}
}

func (m *model) regression() bool {
	return m.svmType == svmEpsilonSVR || m.svmType == svmNuSVR
}

func (m *model) nrClass() int32 {
	if m.svmType == svmOneClass || m.regression() {
		return 2
	}
	return int32(len(m.classes))
}

// query pads or truncates x to the model dimension; absent features are zero.
func (m *model) query(x []float64) search.Float32s {
	q := make([]float32, m.dim)
	for j := 0; j < m.dim && j < len(x); j++ {
		q[j] = float32(x[j])
	}
	return search.Float32s(q)
}

func (m *model) predict(x []float64) float64 {
	q := m.query(x)
	if m.svmType == svmOneClass {
		for j, v := range q {
			if v < m.lower[j] || v > m.upper[j] {
				return -1
			}
		}
		return 1
	}
	best, bestDist := -1, float32(math.MaxFloat32)
	for i, row := range m.rows {
		if d := q.EuclideanDistance(row); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0
	}
	return m.labels[best]
}

// probabilities returns one estimate per class, in class order, from the
// inverse distance to each class's nearest row.
func (m *model) probabilities(x []float64) []float64 {
	q := m.query(x)
	nearest := make([]float64, len(m.classes))
	for c := range nearest {
		nearest[c] = math.Inf(1)
	}
	for i, row := range m.rows {
		c := m.classIndex(m.labels[i])
		nearest[c] = math.Min(nearest[c], float64(q.EuclideanDistance(row)))
	}
	probs := make([]float64, len(m.classes))
	var total float64
	for c, d := range nearest {
		probs[c] = 1 / (d + 1e-9)
		total += probs[c]
	}
	for c := range probs {
		probs[c] /= total
	}
	return probs
}

func (m *model) classIndex(label float64) int {
	for i, c := range m.classes {
		if c == label {
			return i
		}
	}
	return -1
}

// MarshalBinary stores: magic, svmType(uint32), probability(uint32),
// dim(uint32), n(uint32), then for each row: label(float64), vec(float32[dim]).
func (m *model) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 20+len(m.rows)*(8+4*m.dim))
	putU32 := func(v uint32) { out = binary.LittleEndian.AppendUint32(out, v) }
	out = append(out, modelMagic[:]...)
	putU32(uint32(m.svmType))
	if m.probability {
		putU32(1)
	} else {
		putU32(0)
	}
	putU32(uint32(m.dim))
	putU32(uint32(len(m.rows)))
	for i, row := range m.rows {
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(m.labels[i]))
		for j := 0; j < m.dim; j++ {
			putU32(math.Float32bits(row[j]))
		}
	}
	return out, nil
}

// UnmarshalBinary restores a model from bytes.
func (m *model) UnmarshalBinary(data []byte) error {
	if len(data) < 20 || [4]byte(data[:4]) != modelMagic {
		return errors.New("enginetest: invalid model data")
	}
	off := 4
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(data[off : off+4]); off += 4; return v }
	svmType := int32(getU32())
	probability := getU32() == 1
	dim := int(getU32())
	n := int(getU32())
	if len(data)-off != n*(8+4*dim) {
		return errors.New("enginetest: truncated model data")
	}
	rows := make([][]float32, n)
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		labels[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(getU32())
		}
		rows[i] = row
	}
	*m = *newModel(svmType, probability, dim, rows, labels)
	return nil
}
