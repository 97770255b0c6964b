package segloss

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

const (
	// DefaultFocalAlpha Class balance weight of positive samples
	DefaultFocalAlpha = 0.25
	// DefaultFocalGamma Focusing strength
	DefaultFocalGamma = 2.0
)

// FocalLoss Binary focal loss. See ref. https://arxiv.org/abs/1708.02002
//
// Alpha - class balance weight, in [0;1]
// Gamma - focusing strength, >= 0
// Epsilon - probabilities are clipped into [Epsilon; 1-Epsilon] before logits are recovered
//
type FocalLoss struct {
	Alpha   float64
	Gamma   float64
	Epsilon float64
}

// NewFocalLoss Constructor for FocalLoss
func NewFocalLoss(alpha, gamma float64) (*FocalLoss, error) {
	f := &FocalLoss{
		Alpha:   alpha,
		Gamma:   gamma,
		Epsilon: Epsilon,
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// DefaultFocalLoss Returns FocalLoss with alpha = 0.25 and gamma = 2
func DefaultFocalLoss() *FocalLoss {
	return &FocalLoss{
		Alpha:   DefaultFocalAlpha,
		Gamma:   DefaultFocalGamma,
		Epsilon: Epsilon,
	}
}

func (f *FocalLoss) validate() error {
	if math.IsNaN(f.Alpha) || f.Alpha < 0 || f.Alpha > 1 {
		return errors.Wrapf(ErrInvalidInput, "focal alpha must be in [0;1], but got %v", f.Alpha)
	}
	if math.IsNaN(f.Gamma) || math.IsInf(f.Gamma, 0) || f.Gamma < 0 {
		return errors.Wrapf(ErrInvalidInput, "focal gamma must be finite and non-negative, but got %v", f.Gamma)
	}
	if math.IsNaN(f.Epsilon) || f.Epsilon <= 0 || f.Epsilon >= 0.5 {
		return errors.Wrapf(ErrInvalidInput, "focal epsilon must be in (0;0.5), but got %v", f.Epsilon)
	}
	return nil
}

// Apply Builds focal loss averaged over every element (scalar).
//
// logits = log(p / (1 - p))
// weight_a = alpha * (1 - p)^gamma * y
// weight_b = (1 - alpha) * p^gamma * (1 - y)
// loss = (log1p(exp(-|logits|)) + relu(-logits)) * (weight_a + weight_b) + logits * weight_b
//
// The softplus is written through log1p(exp(-|x|)) + relu(-x), so large |logits| do not overflow.
func (f *FocalLoss) Apply(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if err := checkPair(yTrue, yPred); err != nil {
		return nil, err
	}
	p, err := clipByValue(yPred, f.Epsilon, 1-f.Epsilon)
	if err != nil {
		return nil, errors.Wrap(err, "Can't clip predictions")
	}
	oneConst, err := constLike(yPred, 1.0)
	if err != nil {
		return nil, err
	}
	alphaConst, err := constLike(yPred, f.Alpha)
	if err != nil {
		return nil, err
	}
	invAlphaConst, err := constLike(yPred, 1-f.Alpha)
	if err != nil {
		return nil, err
	}
	gammaConst, err := constLike(yPred, f.Gamma)
	if err != nil {
		return nil, err
	}

	invP, err := gorgonia.Sub(oneConst, p)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-p)")
	}
	odds, err := gorgonia.HadamardDiv(p, invP)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (p./(1-p))")
	}
	logits, err := gorgonia.Log(odds)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(x)")
	}

	// weight_a = alpha * (1 - p)^gamma * y
	powInvP, err := gorgonia.Pow(invP, gammaConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-p)^gamma")
	}
	hprodA, err := gorgonia.HadamardProd(powInvP, yTrue)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*y)")
	}
	weightA, err := gorgonia.Mul(alphaConst, hprodA)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (alpha*X)")
	}

	// weight_b = (1 - alpha) * p^gamma * (1 - y)
	powP, err := gorgonia.Pow(p, gammaConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do p^gamma")
	}
	invTrue, err := gorgonia.Sub(oneConst, yTrue)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-y)")
	}
	hprodB, err := gorgonia.HadamardProd(powP, invTrue)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*y)")
	}
	weightB, err := gorgonia.Mul(invAlphaConst, hprodB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do ((1-alpha)*X)")
	}

	// log1p(exp(-|logits|)) + relu(-logits)
	absLogits, err := gorgonia.Abs(logits)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do |x|")
	}
	negAbs, err := gorgonia.Neg(absLogits)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	expNegAbs, err := gorgonia.Exp(negAbs)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do exp(x)")
	}
	log1p, err := gorgonia.Log1p(expNegAbs)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log1p(x)")
	}
	negLogits, err := gorgonia.Neg(logits)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	reluNeg, err := gorgonia.Rectify(negLogits)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do relu(x)")
	}
	softplus, err := gorgonia.Add(log1p, reluNeg)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}

	weights, err := gorgonia.Add(weightA, weightB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	weighted, err := gorgonia.HadamardProd(softplus, weights)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*y)")
	}
	logitsB, err := gorgonia.HadamardProd(logits, weightB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*y)")
	}
	loss, err := gorgonia.Add(weighted, logitsB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	return gorgonia.Mean(loss)
}
