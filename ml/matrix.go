package ml

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix is an immutable-by-convention dense matrix. In batched contexts
// every column is one sample. Operations return new matrices and never
// touch their operands.
type Matrix struct {
	rows, cols int
	data       []float64
	dense      *mat.Dense
}

// -------- CONSTRUCTORS ------- //
func NewMatrix(rows, cols int) *Matrix {
	return NewMatrixFromSlice(rows, cols, make([]float64, rows*cols))
}

// NewMatrixFromSlice wraps row-major data without copying it.
func NewMatrixFromSlice(rows, cols int, data []float64) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("Negative dimensions [%d, %d]", rows, cols))
	}
	if len(data) != rows*cols {
		panic(fmt.Sprintf("Slice length mismatch: %d values for [%d, %d]", len(data), rows, cols))
	}
	m := &Matrix{rows: rows, cols: cols, data: data}
	if rows > 0 && cols > 0 {
		m.dense = mat.NewDense(rows, cols, data)
	}
	return m
}

func Zeros(rows, cols int) *Matrix {
	return NewMatrix(rows, cols)
}

func Constant(rows, cols int, v float64) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.data {
		m.data[i] = v
	}
	return m
}

// RandomUniform draws every element from U[lo, hi). A nil rng uses the
// global source.
func RandomUniform(rows, cols int, lo, hi float64, rng *rand.Rand) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.data {
		m.data[i] = lo + uniform(rng)*(hi-lo)
	}
	return m
}

// RandomNormal draws every element from N(mean, std²).
func RandomNormal(rows, cols int, mean, std float64, rng *rand.Rand) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.data {
		m.data[i] = mean + normal(rng)*std
	}
	return m
}

// FromRowLeading builds a matrix whose i-th row is values[i].
func FromRowLeading(values [][]float64) *Matrix {
	if len(values) == 0 {
		return NewMatrix(0, 0)
	}
	rows, cols := len(values), len(values[0])
	m := NewMatrix(rows, cols)
	for i, row := range values {
		if len(row) != cols {
			panic(fmt.Sprintf("Ragged rows: row %d has %d values, want %d", i, len(row), cols))
		}
		copy(m.data[i*cols:], row)
	}
	return m
}

// FromColumnLeading builds a matrix whose j-th column is values[j].
func FromColumnLeading(values [][]float64) *Matrix {
	if len(values) == 0 {
		return NewMatrix(0, 0)
	}
	cols, rows := len(values), len(values[0])
	m := NewMatrix(rows, cols)
	for j, col := range values {
		if len(col) != rows {
			panic(fmt.Sprintf("Ragged columns: column %d has %d values, want %d", j, len(col), rows))
		}
		for i, v := range col {
			m.data[i*cols+j] = v
		}
	}
	return m
}

func (m *Matrix) ToRowLeading() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = make([]float64, m.cols)
		copy(out[i], m.data[i*m.cols:(i+1)*m.cols])
	}
	return out
}

func (m *Matrix) ToColumnLeading() [][]float64 {
	out := make([][]float64, m.cols)
	for j := range out {
		out[j] = m.Column(j)
	}
	return out
}

// ------- MATRIX METHODS ------ //
func (m *Matrix) GobEncode() ([]byte, error) {
	w := new(bytes.Buffer)
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(m.rows); err != nil {
		return nil, err
	}
	if err := encoder.Encode(m.cols); err != nil {
		return nil, err
	}
	if err := encoder.Encode(m.data); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (m *Matrix) GobDecode(buf []byte) error {
	r := bytes.NewBuffer(buf)
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(&m.rows); err != nil {
		return err
	}
	if err := decoder.Decode(&m.cols); err != nil {
		return err
	}
	if err := decoder.Decode(&m.data); err != nil {
		return err
	}
	if len(m.data) != m.rows*m.cols {
		return fmt.Errorf("corrupt matrix: %d values for [%d, %d]", len(m.data), m.rows, m.cols)
	}

	// Re-create the wrapper after loading data
	m.dense = nil
	if m.rows > 0 && m.cols > 0 {
		m.dense = mat.NewDense(m.rows, m.cols, m.data)
	}
	return nil
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

func (m *Matrix) Dims() (int, int) { return m.rows, m.cols }

func (m *Matrix) At(i, j int) float64 {
	return m.data[i*m.cols+j]
}

// RawData exposes the row-major backing slice. Callers must not modify it.
func (m *Matrix) RawData() []float64 { return m.data }

func (m *Matrix) Clone() *Matrix {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return NewMatrixFromSlice(m.rows, m.cols, data)
}

func (m *Matrix) String() string {
	if m.dense == nil {
		return fmt.Sprintf("[%d x %d]", m.rows, m.cols)
	}
	return fmt.Sprintf("%v", mat.Formatted(m.dense, mat.Squeeze()))
}

// Dot is the standard matrix product m·b.
func (m *Matrix) Dot(b *Matrix) *Matrix {
	if m.cols != b.rows {
		panic(fmt.Sprintf("Dot shape mismatch: [%d, %d] x [%d, %d]", m.rows, m.cols, b.rows, b.cols))
	}
	out := NewMatrix(m.rows, b.cols)
	if out.dense == nil || m.cols == 0 {
		return out
	}
	out.dense.Mul(m.dense, b.dense)
	return out
}

func (m *Matrix) Transpose() *Matrix {
	out := NewMatrix(m.cols, m.rows)
	if out.dense != nil {
		out.dense.Copy(m.dense.T())
	}
	return out
}

func (m *Matrix) mustMatch(op string, b *Matrix) {
	if m.rows != b.rows || m.cols != b.cols {
		panic(fmt.Sprintf("%s shape mismatch: [%d, %d] vs [%d, %d]", op, m.rows, m.cols, b.rows, b.cols))
	}
}

func (m *Matrix) ComponentAdd(b *Matrix) *Matrix {
	m.mustMatch("ComponentAdd", b)
	out := NewMatrix(m.rows, m.cols)
	if out.dense != nil {
		out.dense.Add(m.dense, b.dense)
	}
	return out
}

func (m *Matrix) ComponentSub(b *Matrix) *Matrix {
	m.mustMatch("ComponentSub", b)
	out := NewMatrix(m.rows, m.cols)
	if out.dense != nil {
		out.dense.Sub(m.dense, b.dense)
	}
	return out
}

func (m *Matrix) ComponentMul(b *Matrix) *Matrix {
	m.mustMatch("ComponentMul", b)
	out := NewMatrix(m.rows, m.cols)
	if out.dense != nil {
		out.dense.MulElem(m.dense, b.dense)
	}
	return out
}

func (m *Matrix) ComponentDiv(b *Matrix) *Matrix {
	m.mustMatch("ComponentDiv", b)
	out := NewMatrix(m.rows, m.cols)
	if out.dense != nil {
		out.dense.DivElem(m.dense, b.dense)
	}
	return out
}

func (m *Matrix) ScalarAdd(v float64) *Matrix {
	return m.Apply(func(x float64) float64 { return x + v })
}

func (m *Matrix) ScalarSub(v float64) *Matrix {
	return m.Apply(func(x float64) float64 { return x - v })
}

func (m *Matrix) ScalarMul(v float64) *Matrix {
	out := m.Clone()
	floats.Scale(v, out.data)
	return out
}

func (m *Matrix) ScalarDiv(v float64) *Matrix {
	return m.Apply(func(x float64) float64 { return x / v })
}

// AddColumn broadcasts an r×1 column across every column of m.
func (m *Matrix) AddColumn(col *Matrix) *Matrix {
	if col.rows != m.rows || col.cols != 1 {
		panic(fmt.Sprintf("AddColumn shape mismatch: [%d, %d] + [%d, %d]", m.rows, m.cols, col.rows, col.cols))
	}
	out := m.Clone()
	for i := 0; i < m.rows; i++ {
		b := col.data[i]
		row := out.data[i*m.cols : (i+1)*m.cols]
		for j := range row {
			row[j] += b
		}
	}
	return out
}

// ColumnsSum reduces every row across all columns into an r×1 matrix.
func (m *Matrix) ColumnsSum() *Matrix {
	out := NewMatrix(m.rows, 1)
	for i := 0; i < m.rows; i++ {
		out.data[i] = floats.Sum(m.data[i*m.cols : (i+1)*m.cols])
	}
	return out
}

func (m *Matrix) Sum() float64 {
	return floats.Sum(m.data)
}

func (m *Matrix) Mean() float64 {
	if len(m.data) == 0 {
		return 0
	}
	return m.Sum() / float64(len(m.data))
}

func (m *Matrix) Exp() *Matrix    { return m.Apply(math.Exp) }
func (m *Matrix) Log() *Matrix    { return m.Apply(math.Log) }
func (m *Matrix) Sqrt() *Matrix   { return m.Apply(math.Sqrt) }
func (m *Matrix) Square() *Matrix { return m.Apply(func(x float64) float64 { return x * x }) }

// Sign maps negative values to -1 and everything else to +1.
func (m *Matrix) Sign() *Matrix {
	return m.Apply(func(x float64) float64 {
		if x < 0 {
			return -1
		}
		return 1
	})
}

// MaxOf is the element-wise max against a scalar-filled operand.
func (m *Matrix) MaxOf(v float64) *Matrix {
	return m.Apply(func(x float64) float64 { return math.Max(x, v) })
}

// MinOf is the element-wise min against a scalar-filled operand.
func (m *Matrix) MinOf(v float64) *Matrix {
	return m.Apply(func(x float64) float64 { return math.Min(x, v) })
}

func (m *Matrix) Apply(fn func(float64) float64) *Matrix {
	out := NewMatrix(m.rows, m.cols)
	for i, v := range m.data {
		out.data[i] = fn(v)
	}
	return out
}

// Column returns a copy of column j.
func (m *Matrix) Column(j int) []float64 {
	if j < 0 || j >= m.cols {
		panic(fmt.Sprintf("Column %d out of range [0, %d)", j, m.cols))
	}
	col := make([]float64, m.rows)
	for i := range col {
		col[i] = m.data[i*m.cols+j]
	}
	return col
}

// SliceColumns copies columns [from, to).
func (m *Matrix) SliceColumns(from, to int) *Matrix {
	if from < 0 || to > m.cols || from > to {
		panic(fmt.Sprintf("SliceColumns [%d, %d) out of range for %d columns", from, to, m.cols))
	}
	width := to - from
	out := NewMatrix(m.rows, width)
	for i := 0; i < m.rows; i++ {
		copy(out.data[i*width:(i+1)*width], m.data[i*m.cols+from:i*m.cols+to])
	}
	return out
}

// SelectColumns gathers the given columns, in order, into a new matrix.
func (m *Matrix) SelectColumns(idx []int) *Matrix {
	out := NewMatrix(m.rows, len(idx))
	for k, j := range idx {
		if j < 0 || j >= m.cols {
			panic(fmt.Sprintf("SelectColumns index %d out of range [0, %d)", j, m.cols))
		}
		for i := 0; i < m.rows; i++ {
			out.data[i*out.cols+k] = m.data[i*m.cols+j]
		}
	}
	return out
}

// HStack concatenates matrices with equal row counts side by side.
func HStack(ms ...*Matrix) *Matrix {
	if len(ms) == 0 {
		return NewMatrix(0, 0)
	}
	rows, cols := ms[0].rows, 0
	for _, m := range ms {
		if m.rows != rows {
			panic(fmt.Sprintf("HStack row mismatch: %d vs %d", m.rows, rows))
		}
		cols += m.cols
	}
	out := NewMatrix(rows, cols)
	offset := 0
	for _, m := range ms {
		for i := 0; i < rows; i++ {
			copy(out.data[i*cols+offset:i*cols+offset+m.cols], m.data[i*m.cols:(i+1)*m.cols])
		}
		offset += m.cols
	}
	return out
}

// EqualApprox reports whether both matrices share a shape and every
// element differs by at most tol.
func (m *Matrix) EqualApprox(b *Matrix, tol float64) bool {
	if m.rows != b.rows || m.cols != b.cols {
		return false
	}
	return floats.EqualApprox(m.data, b.data, tol)
}

func uniform(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}

func normal(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.NormFloat64()
	}
	return rng.NormFloat64()
}
