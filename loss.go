package segloss

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Epsilon Clipping bound for probabilities before taking logarithms: predictions are clipped into [Epsilon; 1-Epsilon]
const Epsilon = 1e-7

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
	// LossReductionNone Keeps element-wise (or per-sample) losses
	LossReductionNone
)

// LossFunc Signature shared by every loss in this package. Arguments are (target, prediction)
type LossFunc func(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error)

// Loss Configured loss (hyperparameters are fixed at construction time)
type Loss interface {
	Apply(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error)
}

func reduce(a *gorgonia.Node, reduction LossReduction) (*gorgonia.Node, error) {
	switch reduction {
	case LossReductionSum:
		return gorgonia.Sum(a)
	case LossReductionMean:
		return gorgonia.Mean(a)
	case LossReductionNone:
		return a, nil
	default:
		return nil, errors.Wrapf(ErrInvalidInput, "Reduction type %d is not supported", reduction)
	}
}

func pickReduction(defaultReduction LossReduction, reduction []LossReduction) LossReduction {
	if len(reduction) != 0 {
		return reduction[0]
	}
	return defaultReduction
}

// BinaryCrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// In case of binary variation of cross entropy loss: sample could belong to 0 or 1 only.
//
// loss = -(y*log(p) + (1-y)*log(1-p)), where p is prediction clipped into [Epsilon; 1-Epsilon]
//
// Default reduction is 'mean'
func BinaryCrossEntropyLoss(yTrue, yPred *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return nil, err
	}
	clipped, err := clipByValue(yPred, Epsilon, 1-Epsilon)
	if err != nil {
		return nil, errors.Wrap(err, "Can't clip predictions")
	}
	oneConst, err := constLike(yPred, 1.0)
	if err != nil {
		return nil, err
	}

	// Positive part: y*log(p)
	logMain, err := gorgonia.Log(clipped)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	hprodMain, err := gorgonia.HadamardProd(yTrue, logMain)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (B.*x)")
	}

	// Negative part: (1-y)*log(1-p)
	invPred, err := gorgonia.Sub(oneConst, clipped)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	logBin, err := gorgonia.Log(invPred)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1-A)")
	}
	invTrue, err := gorgonia.Sub(oneConst, yTrue)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	hprodBin, err := gorgonia.HadamardProd(invTrue, logBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*y)")
	}

	sum, err := gorgonia.Add(hprodMain, hprodBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	neg, err := gorgonia.Neg(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	return reduce(neg, pickReduction(LossReductionMean, reduction))
}

// Names accepted by LossByName
const (
	LossNameBCE          = "bce"
	LossNameDice         = "dice"
	LossNameFocal        = "focal"
	LossNameCrossDice    = "cross_dice"
	LossNameTversky      = "tversky"
	LossNameFocalTversky = "focal_tversky"
)

// LossByName Returns loss with default hyperparameters for its snake-case name.
//
// Per-sample losses (dice, tversky, focal_tversky, cross_dice) are returned unreduced, see ReduceLoss.
func LossByName(name string) (LossFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LossNameBCE:
		return func(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
			return BinaryCrossEntropyLoss(yTrue, yPred)
		}, nil
	case LossNameDice:
		return DiceLoss, nil
	case LossNameFocal:
		return DefaultFocalLoss().Apply, nil
	case LossNameCrossDice:
		return func(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
			return CrossDiceLoss(yTrue, yPred)
		}, nil
	case LossNameTversky:
		return DefaultTverskyLoss().Apply, nil
	case LossNameFocalTversky:
		return FocalTversky, nil
	default:
		return nil, errors.Wrapf(ErrUnknownName, "loss '%s'", name)
	}
}

// ReduceLoss Reduces per-sample loss into scalar suitable for gorgonia.Grad. Scalars are returned as is.
func ReduceLoss(loss *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	if loss.IsScalar() {
		return loss, nil
	}
	r := pickReduction(LossReductionMean, reduction)
	if r == LossReductionNone {
		return nil, errors.Wrap(ErrInvalidInput, fmt.Sprintf("can't reduce loss of shape %v with 'none' reduction", loss.Shape()))
	}
	return reduce(loss, r)
}
