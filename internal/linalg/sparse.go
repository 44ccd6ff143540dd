package linalg

import (
	"fmt"
	"sort"
)

// Triplets accumulates sparse matrix contributions for an n×n matrix.
// It is not safe for concurrent use; give each worker its own and Append.
type Triplets struct {
	n    int
	rows []int
	cols []int
	vals []float64
}

// NewTriplets returns an empty accumulator for an n×n matrix.
func NewTriplets(n int) *Triplets {
	return &Triplets{n: n}
}

// Dim returns the matrix dimension.
func (t *Triplets) Dim() int { return t.n }

// Len returns the number of recorded contributions.
func (t *Triplets) Len() int { return len(t.vals) }

// Add records v at (i, j). Zero contributions are dropped.
func (t *Triplets) Add(i, j int, v float64) {
	if v == 0 {
		return
	}
	t.rows = append(t.rows, i)
	t.cols = append(t.cols, j)
	t.vals = append(t.vals, v)
}

// Append adds every contribution of o after those already recorded.
func (t *Triplets) Append(o *Triplets) {
	t.rows = append(t.rows, o.rows...)
	t.cols = append(t.cols, o.cols...)
	t.vals = append(t.vals, o.vals...)
}

// Compress builds a CSR matrix, summing duplicate cells in insertion order.
func (t *Triplets) Compress() *CSR {
	order := make([]int, len(t.vals))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if t.rows[ka] != t.rows[kb] {
			return t.rows[ka] < t.rows[kb]
		}
		return t.cols[ka] < t.cols[kb]
	})

	m := &CSR{n: t.n, rowPtr: make([]int, t.n+1)}
	lastRow, lastCol := -1, -1
	for _, k := range order {
		i, j := t.rows[k], t.cols[k]
		if i == lastRow && j == lastCol {
			m.val[len(m.val)-1] += t.vals[k]
			continue
		}
		m.col = append(m.col, j)
		m.val = append(m.val, t.vals[k])
		m.rowPtr[i+1]++
		lastRow, lastCol = i, j
	}
	for i := 0; i < t.n; i++ {
		m.rowPtr[i+1] += m.rowPtr[i]
	}
	return m
}

// CSR is an immutable square sparse matrix in compressed sparse row form.
type CSR struct {
	n      int
	rowPtr []int
	col    []int
	val    []float64
}

// NewCSR builds a matrix from raw CSR arrays. Columns within a row must be
// strictly ascending.
func NewCSR(n int, rowPtr, col []int, val []float64) (*CSR, error) {
	if len(rowPtr) != n+1 || len(col) != len(val) || rowPtr[n] != len(col) {
		return nil, fmt.Errorf("linalg: inconsistent CSR arrays for n=%d: %w", n, ErrNotSquare)
	}
	return &CSR{n: n, rowPtr: rowPtr, col: col, val: val}, nil
}

// Dim returns the matrix dimension.
func (m *CSR) Dim() int { return m.n }

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int { return len(m.val) }

// Row returns the column indices and values of row i. The slices alias the
// matrix storage and must not be modified.
func (m *CSR) Row(i int) ([]int, []float64) {
	lo, hi := m.rowPtr[i], m.rowPtr[i+1]
	return m.col[lo:hi], m.val[lo:hi]
}

// At returns the entry at (i, j).
func (m *CSR) At(i, j int) float64 {
	cols, vals := m.Row(i)
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return vals[k]
	}
	return 0
}

// Diag returns the diagonal.
func (m *CSR) Diag() []float64 {
	d := make([]float64, m.n)
	for i := range d {
		d[i] = m.At(i, i)
	}
	return d
}

// RowSum returns the sum of every stored entry in row i.
func (m *CSR) RowSum(i int) float64 {
	_, vals := m.Row(i)
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s
}

// OffDiagRowSum returns the sum of row i excluding the diagonal.
func (m *CSR) OffDiagRowSum(i int) float64 {
	cols, vals := m.Row(i)
	s := 0.0
	for k, j := range cols {
		if j != i {
			s += vals[k]
		}
	}
	return s
}

// MulVec computes dst = m·x.
func (m *CSR) MulVec(dst, x []float64) {
	for i := 0; i < m.n; i++ {
		s := 0.0
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			s += m.val[k] * x[m.col[k]]
		}
		dst[i] = s
	}
}

// Transpose returns mᵀ.
func (m *CSR) Transpose() *CSR {
	t := &CSR{
		n:      m.n,
		rowPtr: make([]int, m.n+1),
		col:    make([]int, len(m.col)),
		val:    make([]float64, len(m.val)),
	}
	for _, j := range m.col {
		t.rowPtr[j+1]++
	}
	for i := 0; i < m.n; i++ {
		t.rowPtr[i+1] += t.rowPtr[i]
	}
	next := append([]int(nil), t.rowPtr[:m.n]...)
	for i := 0; i < m.n; i++ {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			j := m.col[k]
			t.col[next[j]] = i
			t.val[next[j]] = m.val[k]
			next[j]++
		}
	}
	return t
}

// Map builds a new matrix over the rows in keep (renumbered by position),
// passing each retained entry through f. Entries whose column is not in keep
// are dropped, as are entries for which f returns 0.
func (m *CSR) Map(keep []int, f func(i, j int, v float64) float64) *CSR {
	pos := make(map[int]int, len(keep))
	for p, i := range keep {
		pos[i] = p
	}
	tr := NewTriplets(len(keep))
	for p, i := range keep {
		cols, vals := m.Row(i)
		for k, j := range cols {
			q, ok := pos[j]
			if !ok {
				continue
			}
			tr.Add(p, q, f(i, j, vals[k]))
		}
	}
	return tr.Compress()
}

// WithRow returns a copy of m whose row r is replaced by the dense vector row.
func (m *CSR) WithRow(r int, row []float64) *CSR {
	tr := NewTriplets(m.n)
	for i := 0; i < m.n; i++ {
		if i == r {
			for j, v := range row {
				tr.Add(i, j, v)
			}
			continue
		}
		cols, vals := m.Row(i)
		for k, j := range cols {
			tr.Add(i, j, vals[k])
		}
	}
	return tr.Compress()
}
