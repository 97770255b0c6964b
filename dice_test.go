package segloss

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// diceRef Per-sample Dice loss over flattened samples of size n
func diceRef(yTrue, yPred []float64, n int) []float64 {
	ans := make([]float64, len(yTrue)/n)
	for b := range ans {
		t := yTrue[b*n : (b+1)*n]
		p := yPred[b*n : (b+1)*n]
		intersection := floats.Dot(t, p)
		total := floats.Sum(t) + floats.Sum(p)
		ans[b] = 1 - (2*intersection+DiceSmooth)/(total+DiceSmooth)
	}
	return ans
}

func TestDiceLossPerfectPrediction(t *testing.T) {
	g := gorgonia.NewGraph()
	mask := []float64{1, 0, 0, 1}
	yTrue := inputNode(g, "y_true", mask, 2, 2)
	yPred := inputNode(g, "y_pred", mask, 2, 2)
	loss, err := DiceLoss(yTrue, yPred)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2}, loss.Shape())
	assert.InDeltaSlice(t, []float64{0, 0}, evalFloat64s(t, g, loss), deltaForTests)
}

func TestDiceLossValues(t *testing.T) {
	g := gorgonia.NewGraph()
	trueData := []float64{1, 1, 0, 0, 0, 0, 0, 1}
	predData := []float64{0.5, 1, 0.5, 0, 0, 0, 0, 0}
	yTrue := inputNode(g, "y_true", trueData, 2, 4)
	yPred := inputNode(g, "y_pred", predData, 2, 4)
	loss, err := DiceLoss(yTrue, yPred)
	require.NoError(t, err)
	got := evalFloat64s(t, g, loss)
	assert.InDeltaSlice(t, diceRef(trueData, predData, 4), got, deltaForTests)
	assert.InDelta(t, 0.25, got[0], 1e-6)
	assert.InDelta(t, 1.0, got[1], 1e-6)
}

func TestDiceLossAllZeros(t *testing.T) {
	g := gorgonia.NewGraph()
	zeros := make([]float64, 2*1*2*2)
	yTrue := inputNode(g, "y_true", zeros, 2, 1, 2, 2)
	yPred := inputNode(g, "y_pred", zeros, 2, 1, 2, 2)
	loss, err := DiceLoss(yTrue, yPred)
	require.NoError(t, err)
	values, err := RunGraph(g, loss)
	require.NoError(t, err)
	require.NoError(t, CheckFinite(values[0]))
	got, err := ValueToFloat64s(values[0])
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0}, got, deltaForTests)
}

func TestDiceLossSymmetric(t *testing.T) {
	rand.Seed(42)
	a := UniformRandDense(3, 2, 4)
	b := UniformRandDense(3, 2, 4)
	aData := a.Data().([]float64)
	bData := b.Data().([]float64)

	g := gorgonia.NewGraph()
	aNode := inputNode(g, "a", aData, 3, 2, 4)
	bNode := inputNode(g, "b", bData, 3, 2, 4)
	ab, err := DiceLoss(aNode, bNode)
	require.NoError(t, err)
	ba, err := DiceLoss(bNode, aNode)
	require.NoError(t, err)
	values, err := RunGraph(g, ab, ba)
	require.NoError(t, err)
	abData, err := ValueToFloat64s(values[0])
	require.NoError(t, err)
	baData, err := ValueToFloat64s(values[1])
	require.NoError(t, err)
	assert.InDeltaSlice(t, abData, baData, deltaForTests)
	assert.InDeltaSlice(t, diceRef(aData, bData, 8), abData, deltaForTests)
}

func TestDiceLossBadInput(t *testing.T) {
	g := gorgonia.NewGraph()
	vecTrue := inputNode(g, "vec_true", []float64{1, 0}, 2)
	vecPred := inputNode(g, "vec_pred", []float64{1, 0}, 2)
	_, err := DiceLoss(vecTrue, vecPred)
	assert.True(t, errors.Is(err, ErrInvalidInput), "1-D input must be rejected")

	yTrue := inputNode(g, "y_true", []float64{1, 0, 1, 0}, 2, 2)
	yPred := inputNode(g, "y_pred", []float64{1, 0, 1, 0, 1, 0}, 2, 3)
	_, err = DiceLoss(yTrue, yPred)
	assert.True(t, errors.Is(err, ErrInvalidInput), "shape mismatch must be rejected")
}

func TestCrossDiceLoss4D(t *testing.T) {
	rand.Seed(7)
	trueData := []float64{1, 0, 1, 1, 0, 0, 1, 0}
	predData := UniformRandDense(2, 1, 2, 2).Data().([]float64)

	g := gorgonia.NewGraph()
	yTrue := inputNode(g, "y_true", trueData, 2, 1, 2, 2)
	yPred := inputNode(g, "y_pred", predData, 2, 1, 2, 2)
	loss, err := CrossDiceLoss(yTrue, yPred)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 1, 2}, loss.Shape())
	got := evalFloat64s(t, g, loss)

	dice := diceRef(trueData, predData, 4)
	bce := bceRef(trueData, predData)
	want := make([]float64, 4)
	for i := range want {
		// mean over last axis (size 2) plus Dice of the sample
		want[i] = (bce[2*i]+bce[2*i+1])/2 + dice[i/2]
	}
	assert.InDeltaSlice(t, want, got, deltaForTests)
}

func TestCrossDiceLoss2D(t *testing.T) {
	trueData := []float64{1, 0, 1, 0, 0, 1}
	predData := []float64{0.9, 0.2, 0.6, 0.1, 0.3, 0.7}

	g := gorgonia.NewGraph()
	yTrue := inputNode(g, "y_true", trueData, 2, 3)
	yPred := inputNode(g, "y_pred", predData, 2, 3)
	loss, err := CrossDiceLoss(yTrue, yPred)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2}, loss.Shape())
	got := evalFloat64s(t, g, loss)

	dice := diceRef(trueData, predData, 3)
	bce := bceRef(trueData, predData)
	want := []float64{
		floats.Sum(bce[:3])/3 + dice[0],
		floats.Sum(bce[3:])/3 + dice[1],
	}
	assert.InDeltaSlice(t, want, got, deltaForTests)

	g2 := gorgonia.NewGraph()
	yTrue2 := inputNode(g2, "y_true", trueData, 2, 3)
	yPred2 := inputNode(g2, "y_pred", predData, 2, 3)
	meanLoss, err := CrossDiceLoss(yTrue2, yPred2, LossReductionMean)
	require.NoError(t, err)
	require.True(t, meanLoss.IsScalar())
	gotMean := evalFloat64s(t, g2, meanLoss)
	assert.InDelta(t, (want[0]+want[1])/2, gotMean[0], deltaForTests)
}
