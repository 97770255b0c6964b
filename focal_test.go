package segloss

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
)

// focalRef Mean focal loss written directly from the definition: -alpha*(1-p)^gamma*log(p) for positives
// and -(1-alpha)*p^gamma*log(1-p) for negatives
func focalRef(yTrue, yPred []float64, alpha, gamma float64) float64 {
	total := 0.0
	for i := range yTrue {
		p := clipRef(yPred[i])
		total += -alpha*math.Pow(1-p, gamma)*yTrue[i]*math.Log(p) - (1-alpha)*math.Pow(p, gamma)*(1-yTrue[i])*math.Log(1-p)
	}
	return total / float64(len(yTrue))
}

func evalFocal(t *testing.T, f *FocalLoss, trueData, predData []float64, shape ...int) float64 {
	t.Helper()
	g := gorgonia.NewGraph()
	yTrue := inputNode(g, "y_true", trueData, shape...)
	yPred := inputNode(g, "y_pred", predData, shape...)
	loss, err := f.Apply(yTrue, yPred)
	require.NoError(t, err)
	require.True(t, loss.IsScalar())
	values, err := RunGraph(g, loss)
	require.NoError(t, err)
	require.NoError(t, CheckFinite(values[0]))
	got, err := ValueToFloat64s(values[0])
	require.NoError(t, err)
	return got[0]
}

func TestFocalLossValues(t *testing.T) {
	rand.Seed(1337)
	trueData := make([]float64, 2*3*4)
	for i := range trueData {
		if rand.Float64() > 0.5 {
			trueData[i] = 1
		}
	}
	predData := UniformRandDense(2, 3, 4).Data().([]float64)

	for _, params := range [][2]float64{{0.25, 2}, {0.5, 1}, {0.9, 3.5}} {
		f, err := NewFocalLoss(params[0], params[1])
		require.NoError(t, err)
		got := evalFocal(t, f, trueData, predData, 2, 3, 4)
		assert.InDeltaf(t, focalRef(trueData, predData, params[0], params[1]), got, 1e-9, "alpha=%v, gamma=%v", params[0], params[1])
	}
}

func TestFocalLossPerfectPrediction(t *testing.T) {
	mask := []float64{1, 0, 0, 1}
	got := evalFocal(t, DefaultFocalLoss(), mask, mask, 2, 2)
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 1e-6)
}

func TestFocalLossExtremePredictions(t *testing.T) {
	trueData := []float64{1, 0, 1, 0, 1, 0}
	predData := []float64{1e-12, 1 - 1e-12, 1 - 1e-12, 1e-12, 0, 1}
	got := evalFocal(t, DefaultFocalLoss(), trueData, predData, 2, 3)
	assert.False(t, math.IsNaN(got) || math.IsInf(got, 0))
	assert.InDelta(t, focalRef(trueData, predData, DefaultFocalAlpha, DefaultFocalGamma), got, 1e-8)
}

func TestFocalLossGammaZeroIsWeightedCrossEntropy(t *testing.T) {
	trueData := []float64{1, 0, 1, 0, 0, 1}
	predData := []float64{0.9, 0.2, 0.6, 0.1, 0.3, 0.7}
	f, err := NewFocalLoss(0.5, 0)
	require.NoError(t, err)
	got := evalFocal(t, f, trueData, predData, 2, 3)

	g := gorgonia.NewGraph()
	yTrue := inputNode(g, "y_true", trueData, 2, 3)
	yPred := inputNode(g, "y_pred", predData, 2, 3)
	bce, err := BinaryCrossEntropyLoss(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*evalFloat64s(t, g, bce)[0], got, 1e-9)
}

func TestFocalLossGradientIsFinite(t *testing.T) {
	g := gorgonia.NewGraph()
	yTrue := inputNode(g, "y_true", []float64{1, 0, 1, 0}, 2, 2)
	yPred := inputNode(g, "y_pred", []float64{0.999, 0.001, 0.3, 0.6}, 2, 2)
	loss, err := DefaultFocalLoss().Apply(yTrue, yPred)
	require.NoError(t, err)
	grads, err := gorgonia.Grad(loss, yPred)
	require.NoError(t, err)
	values, err := RunGraph(g, grads[0])
	require.NoError(t, err)
	require.NoError(t, CheckFinite(values[0]))
	got, err := ValueToFloat64s(values[0])
	require.NoError(t, err)
	// Increasing prediction of positive sample decreases loss, increasing prediction of negative one increases it
	assert.Less(t, got[2], 0.0)
	assert.Greater(t, got[3], 0.0)
}

func TestNewFocalLossBadInput(t *testing.T) {
	for _, params := range [][2]float64{{-0.1, 2}, {1.1, 2}, {0.25, -1}, {math.NaN(), 2}, {0.25, math.Inf(1)}} {
		_, err := NewFocalLoss(params[0], params[1])
		assert.Truef(t, errors.Is(err, ErrInvalidInput), "alpha=%v, gamma=%v", params[0], params[1])
	}
	f := &FocalLoss{Alpha: 0.25, Gamma: 2}
	g := gorgonia.NewGraph()
	yTrue := inputNode(g, "y_true", []float64{1, 0}, 1, 2)
	yPred := inputNode(g, "y_pred", []float64{1, 0}, 1, 2)
	_, err := f.Apply(yTrue, yPred)
	assert.True(t, errors.Is(err, ErrInvalidInput), "zero epsilon must be rejected")
}
