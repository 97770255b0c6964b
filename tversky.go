package segloss

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

const (
	// DefaultTverskyBeta Weight of false positives. False negatives are weighted by (1 - beta)
	DefaultTverskyBeta = 0.8
	// TverskySmooth Added to both numerator and denominator of Tversky index
	TverskySmooth = 1.0
	// DefaultFocalTverskyGamma Exponent of focal Tversky loss
	DefaultFocalTverskyGamma = 0.75
)

// TverskyLoss See ref. https://arxiv.org/abs/1706.05721
//
// Beta - weight of false positives, in [0;1]. Beta = 0.5 gives Dice-like loss
// Smooth - added to numerator and denominator of index, >= 0
// Axes - axes to reduce. Empty means every non-batch axis. Negative values count from the end
//
type TverskyLoss struct {
	Beta   float64
	Smooth float64
	Axes   []int
}

// NewTverskyLoss Constructor for TverskyLoss
func NewTverskyLoss(beta float64) (*TverskyLoss, error) {
	t := &TverskyLoss{
		Beta:   beta,
		Smooth: TverskySmooth,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// DefaultTverskyLoss Returns TverskyLoss with beta = 0.8
func DefaultTverskyLoss() *TverskyLoss {
	return &TverskyLoss{
		Beta:   DefaultTverskyBeta,
		Smooth: TverskySmooth,
	}
}

func (t *TverskyLoss) validate() error {
	if math.IsNaN(t.Beta) || t.Beta < 0 || t.Beta > 1 {
		return errors.Wrapf(ErrInvalidInput, "tversky beta must be in [0;1], but got %v", t.Beta)
	}
	if math.IsNaN(t.Smooth) || math.IsInf(t.Smooth, 0) || t.Smooth < 0 {
		return errors.Wrapf(ErrInvalidInput, "tversky smooth must be finite and non-negative, but got %v", t.Smooth)
	}
	return nil
}

// TverskyIndex Builds per-sample Tversky index:
//
// TP = Σ(y*p)
// D = Σ(y*p + beta*(1-y)*p + (1-beta)*y*(1-p))
// index = (TP + smooth) / (D + smooth)
//
// With smooth > 0 an all-zero sample gives index 1 instead of 0/0.
//
func (t *TverskyLoss) TverskyIndex(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if err := checkPair(yTrue, yPred); err != nil {
		return nil, err
	}
	axes, err := normalizeAxes(yTrue, t.Axes)
	if err != nil {
		return nil, err
	}
	oneConst, err := constLike(yPred, 1.0)
	if err != nil {
		return nil, err
	}
	betaConst, err := constLike(yPred, t.Beta)
	if err != nil {
		return nil, err
	}
	invBetaConst, err := constLike(yPred, 1-t.Beta)
	if err != nil {
		return nil, err
	}
	smoothConst, err := constLike(yPred, t.Smooth)
	if err != nil {
		return nil, err
	}

	truePositives, err := gorgonia.HadamardProd(yTrue, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (B.*A)")
	}

	// beta*(1-y)*p
	invTrue, err := gorgonia.Sub(oneConst, yTrue)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	fp, err := gorgonia.HadamardProd(invTrue, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*A)")
	}
	falsePositives, err := gorgonia.Mul(betaConst, fp)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (beta*X)")
	}

	// (1-beta)*y*(1-p)
	invPred, err := gorgonia.Sub(oneConst, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	fn, err := gorgonia.HadamardProd(yTrue, invPred)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (B.*x)")
	}
	falseNegatives, err := gorgonia.Mul(invBetaConst, fn)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do ((1-beta)*X)")
	}

	numeratorSum, err := gorgonia.Sum(truePositives, axes...)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't do Σx along axes %v", axes))
	}
	numerator, err := gorgonia.Add(numeratorSum, smoothConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X+smooth)")
	}

	errorsSum, err := gorgonia.Add(falsePositives, falseNegatives)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	denominatorElems, err := gorgonia.Add(truePositives, errorsSum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	denominatorSum, err := gorgonia.Sum(denominatorElems, axes...)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't do Σx along axes %v", axes))
	}
	denominator, err := gorgonia.Add(denominatorSum, smoothConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X+smooth)")
	}

	index, err := gorgonia.HadamardDiv(numerator, denominator)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X./Y)")
	}
	return index, nil
}

// Apply Builds per-sample Tversky loss: 1 - TverskyIndex
func (t *TverskyLoss) Apply(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	index, err := t.TverskyIndex(yTrue, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "[Tversky]")
	}
	oneConst, err := constLike(yPred, 1.0)
	if err != nil {
		return nil, err
	}
	loss, err := gorgonia.Sub(oneConst, index)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-X)")
	}
	return loss, nil
}

// FocalTverskyLoss See ref. https://arxiv.org/abs/1810.07842
//
// loss = (1 - TverskyIndex)^gamma
//
// The common Keras recipe calls its tversky_loss factory without arguments; repairing that call literally
// gives (1 - tversky_loss)^gamma = TverskyIndex^gamma. The base here is 1 - TverskyIndex, as in the paper.
//
// Base of power is rectified, so it never goes below zero even for predictions outside of [0;1].
type FocalTverskyLoss struct {
	Tversky *TverskyLoss
	Gamma   float64
}

// NewFocalTverskyLoss Constructor for FocalTverskyLoss
func NewFocalTverskyLoss(beta, gamma float64) (*FocalTverskyLoss, error) {
	tversky, err := NewTverskyLoss(beta)
	if err != nil {
		return nil, err
	}
	ft := &FocalTverskyLoss{
		Tversky: tversky,
		Gamma:   gamma,
	}
	if err := ft.validate(); err != nil {
		return nil, err
	}
	return ft, nil
}

// DefaultFocalTverskyLoss Returns FocalTverskyLoss with beta = 0.8 and gamma = 0.75
func DefaultFocalTverskyLoss() *FocalTverskyLoss {
	return &FocalTverskyLoss{
		Tversky: DefaultTverskyLoss(),
		Gamma:   DefaultFocalTverskyGamma,
	}
}

func (ft *FocalTverskyLoss) validate() error {
	if ft.Tversky == nil {
		return errors.Wrap(ErrInvalidInput, "focal tversky has no tversky part")
	}
	if math.IsNaN(ft.Gamma) || math.IsInf(ft.Gamma, 0) || ft.Gamma <= 0 {
		return errors.Wrapf(ErrInvalidInput, "focal tversky gamma must be finite and positive, but got %v", ft.Gamma)
	}
	return nil
}

// Apply Builds per-sample focal Tversky loss
func (ft *FocalTverskyLoss) Apply(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	if err := ft.validate(); err != nil {
		return nil, err
	}
	tverskyLoss, err := ft.Tversky.Apply(yTrue, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "[FocalTversky]")
	}
	base, err := gorgonia.Rectify(tverskyLoss)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do relu(x)")
	}
	gammaConst, err := constLike(yPred, ft.Gamma)
	if err != nil {
		return nil, err
	}
	loss, err := gorgonia.Pow(base, gammaConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do x^gamma")
	}
	return loss, nil
}

// FocalTversky Focal Tversky loss with beta = 0.8 and gamma = 0.75
func FocalTversky(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	return DefaultFocalTverskyLoss().Apply(yTrue, yPred)
}
