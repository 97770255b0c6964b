package segloss

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"
)

// NormRandDense Return reference to tensor.Dense filled with normally distributed float64 values
//
// shape - shape of resulting dense. First dimension is batch size
//
func NormRandDense(shape ...int) *tensor.Dense {
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = rand.NormFloat64()
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// UniformRandDense Return reference to tensor.Dense filled with pseudo-random float64 values in range [0.0,1.0)
//
// shape - shape of resulting dense. First dimension is batch size
//
func UniformRandDense(shape ...int) *tensor.Dense {
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = rand.Float64()
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// SlicerOneStep Just iterator with step size = 1
type SlicerOneStep struct {
	StartIdx, EndIdx int
}

func (s SlicerOneStep) Start() int { return s.StartIdx }
func (s SlicerOneStep) End() int   { return s.EndIdx }
func (s SlicerOneStep) Step() int  { return 1 }

func checkDtype(a *gorgonia.Node) error {
	if a == nil {
		return errors.Wrap(ErrInvalidInput, "node is nil")
	}
	switch a.Dtype() {
	case tensor.Float64, tensor.Float32:
		return nil
	default:
		return errors.Wrapf(ErrInvalidInput, "dtype %v is not supported, only float64 and float32 are", a.Dtype())
	}
}

// checkPair Validates prediction/target pair: same dtype and same shape
func checkPair(yTrue, yPred *gorgonia.Node) error {
	if err := checkDtype(yTrue); err != nil {
		return errors.Wrap(err, "[y_true]")
	}
	if err := checkDtype(yPred); err != nil {
		return errors.Wrap(err, "[y_pred]")
	}
	if yTrue.Dtype() != yPred.Dtype() {
		return errors.Wrapf(ErrInvalidInput, "y_true has dtype %v, but y_pred has dtype %v", yTrue.Dtype(), yPred.Dtype())
	}
	if !yTrue.Shape().Eq(yPred.Shape()) {
		return errors.Wrapf(ErrInvalidInput, "y_true has shape %v, but y_pred has shape %v", yTrue.Shape(), yPred.Shape())
	}
	return nil
}

// constLike Returns constant node holding v with the same dtype as provided node has
func constLike(a *gorgonia.Node, v float64) (*gorgonia.Node, error) {
	switch a.Dtype() {
	case tensor.Float64:
		return gorgonia.NewConstant(v), nil
	case tensor.Float32:
		return gorgonia.NewConstant(float32(v)), nil
	default:
		return nil, errors.Wrapf(ErrInvalidInput, "can't make constant for dtype %v", a.Dtype())
	}
}

// nonBatchAxes Returns every axis except axis 0
func nonBatchAxes(a *gorgonia.Node) ([]int, error) {
	dims := a.Dims()
	if dims < 2 {
		return nil, errors.Wrapf(ErrInvalidInput, "batch-first input with 2 dimensions atleast expected, but got shape %v", a.Shape())
	}
	axes := make([]int, 0, dims-1)
	for i := 1; i < dims; i++ {
		axes = append(axes, i)
	}
	return axes, nil
}

// normalizeAxes Converts negative axes (counting from the end), sorts and deduplicates them.
// Batch axis (0) can't be reduced. Empty axes means every non-batch axis.
func normalizeAxes(a *gorgonia.Node, axes []int) ([]int, error) {
	if len(axes) == 0 {
		return nonBatchAxes(a)
	}
	dims := a.Dims()
	seen := make(map[int]struct{}, len(axes))
	normalized := make([]int, 0, len(axes))
	for _, axis := range axes {
		if axis < 0 {
			axis += dims
		}
		if axis < 1 || axis >= dims {
			return nil, errors.Wrapf(ErrInvalidInput, "axis %d is out of range [1;%d) for shape %v", axis, dims, a.Shape())
		}
		if _, ok := seen[axis]; ok {
			continue
		}
		seen[axis] = struct{}{}
		normalized = append(normalized, axis)
	}
	sort.Ints(normalized)
	return normalized, nil
}

// clipByValue Clips values into [lo;hi] with rectifiers only, so gradient is kept inside the range:
//
// clip(x) = lo + relu(x - lo) - relu(x - hi)
//
func clipByValue(a *gorgonia.Node, lo, hi float64) (*gorgonia.Node, error) {
	loConst, err := constLike(a, lo)
	if err != nil {
		return nil, err
	}
	hiConst, err := constLike(a, hi)
	if err != nil {
		return nil, err
	}
	subLo, err := gorgonia.Sub(a, loConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-lo)")
	}
	reluLo, err := gorgonia.Rectify(subLo)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do relu(x)")
	}
	subHi, err := gorgonia.Sub(a, hiConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-hi)")
	}
	reluHi, err := gorgonia.Rectify(subHi)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do relu(x)")
	}
	lower, err := gorgonia.Add(loConst, reluLo)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (lo+X)")
	}
	clipped, err := gorgonia.Sub(lower, reluHi)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X-Y)")
	}
	return clipped, nil
}

// RunGraph Evaluates whole graph once and returns copies of values of provided nodes.
// Every input node must have value bound already (gorgonia.WithValue or gorgonia.Let).
func RunGraph(g *gorgonia.ExprGraph, nodes ...*gorgonia.Node) ([]gorgonia.Value, error) {
	klog.V(2).Infof("Running graph with %d nodes, %d of them requested", len(g.AllNodes()), len(nodes))
	tm := gorgonia.NewTapeMachine(g)
	defer tm.Close()
	if err := tm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't run VM")
	}
	values := make([]gorgonia.Value, len(nodes))
	for i, n := range nodes {
		if n.Value() == nil {
			return nil, fmt.Errorf("Node #%d (%s) has no value after evaluation", i, n.Name())
		}
		cloned, err := gorgonia.CloneValue(n.Value())
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't clone value of node #%d", i))
		}
		values[i] = cloned
	}
	return values, nil
}

// ValueToFloat64s Flattens scalar or tensor value of float64/float32 dtype into []float64
func ValueToFloat64s(v gorgonia.Value) ([]float64, error) {
	if v == nil {
		return nil, errors.Wrap(ErrInvalidInput, "value is nil")
	}
	switch data := v.Data().(type) {
	case float64:
		return []float64{data}, nil
	case float32:
		return []float64{float64(data)}, nil
	case []float64:
		ans := make([]float64, len(data))
		copy(ans, data)
		return ans, nil
	case []float32:
		ans := make([]float64, len(data))
		for i := range data {
			ans[i] = float64(data[i])
		}
		return ans, nil
	default:
		return nil, errors.Wrapf(ErrInvalidInput, "value data of type %T is not supported", data)
	}
}

// CheckFinite Returns ErrNumericalInstability if value holds NaN or ±Inf
func CheckFinite(v gorgonia.Value) error {
	data, err := ValueToFloat64s(v)
	if err != nil {
		return err
	}
	if floats.HasNaN(data) {
		return errors.Wrap(ErrNumericalInstability, "NaN in value")
	}
	for i := range data {
		if math.IsInf(data[i], 0) {
			return errors.Wrapf(ErrNumericalInstability, "Inf in value at position %d", i)
		}
	}
	return nil
}

// Curve Named y(x) series for charts
type Curve struct {
	Name string
	X    []float64
	Y    []float64
}

// SampleActivation Evaluates activation function on n evenly spaced points of [from;to]
func SampleActivation(name string, act ActivationFunc, from, to float64, n int, opts ...Options) (Curve, error) {
	if n < 2 {
		return Curve{}, errors.Wrapf(ErrInvalidInput, "2 points atleast expected, but got %d", n)
	}
	xs := floats.Span(make([]float64, n), from, to)
	g := gorgonia.NewGraph()
	x := gorgonia.NewVector(g, tensor.Float64, gorgonia.WithShape(n), gorgonia.WithName("x"), gorgonia.WithValue(tensor.New(tensor.WithShape(n), tensor.WithBacking(xs))))
	y, err := act(x, opts...)
	if err != nil {
		return Curve{}, errors.Wrap(err, fmt.Sprintf("Can't apply activation '%s'", name))
	}
	values, err := RunGraph(g, y)
	if err != nil {
		return Curve{}, errors.Wrap(err, fmt.Sprintf("Can't evaluate activation '%s'", name))
	}
	ys, err := ValueToFloat64s(values[0])
	if err != nil {
		return Curve{}, err
	}
	return Curve{Name: name, X: floats.Span(make([]float64, n), from, to), Y: ys}, nil
}

// PlotCurves Plot chart for provided y(x) curves and save it as image
func PlotCurves(fname string, curves ...Curve) error {
	if len(curves) == 0 {
		return fmt.Errorf("One curve atleast must be provided")
	}
	p := plot.New()
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Add(plotter.NewGrid())
	for i, c := range curves {
		if len(c.X) != len(c.Y) {
			return fmt.Errorf("X and Y(X) of curve '%s' must have same number of elements, but X has %d elements and Y(X) has %d elements", c.Name, len(c.X), len(c.Y))
		}
		xys := make(plotter.XYs, len(c.X))
		for j := range c.X {
			xys[j].X = c.X[j]
			xys[j].Y = c.Y[j]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't init line for curve '%s'", c.Name))
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(c.Name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	if err := p.Save(6*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
