package segloss

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DiceSmooth Added to both numerator and denominator of Dice coefficient.
// With it an empty target matched by an empty prediction gives loss 0 instead of NaN.
const DiceSmooth = 1e-7

// DiceLoss See ref. https://en.wikipedia.org/wiki/S%C3%B8rensen%E2%80%93Dice_coefficient
//
// loss = 1 - (2*Σ(y*p) + DiceSmooth) / (Σ(y + p) + DiceSmooth)
//
// Sums are taken over every axis except batch one (axis 0), so the output has shape (batch,).
// Input must have 2 dimensions atleast.
func DiceLoss(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return nil, err
	}
	axes, err := nonBatchAxes(yTrue)
	if err != nil {
		return nil, err
	}
	smoothConst, err := constLike(yPred, DiceSmooth)
	if err != nil {
		return nil, err
	}
	twoConst, err := constLike(yPred, 2.0)
	if err != nil {
		return nil, err
	}
	oneConst, err := constLike(yPred, 1.0)
	if err != nil {
		return nil, err
	}

	hprod, err := gorgonia.HadamardProd(yTrue, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (B.*A)")
	}
	intersection, err := gorgonia.Sum(hprod, axes...)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't do Σx along axes %v", axes))
	}
	doubled, err := gorgonia.Mul(twoConst, intersection)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (2*X)")
	}
	numerator, err := gorgonia.Add(doubled, smoothConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X+smooth)")
	}

	add, err := gorgonia.Add(yTrue, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (B+A)")
	}
	total, err := gorgonia.Sum(add, axes...)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't do Σx along axes %v", axes))
	}
	denominator, err := gorgonia.Add(total, smoothConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X+smooth)")
	}

	coef, err := gorgonia.HadamardDiv(numerator, denominator)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X./Y)")
	}
	loss, err := gorgonia.Sub(oneConst, coef)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-X)")
	}
	return loss, nil
}

// CrossDiceLoss Sum of binary cross entropy and Dice loss.
//
// Cross entropy is averaged over the last axis only, so for input of shape (batch, d1, ..., dn) it has shape (batch, d1, ..., d(n-1)).
// Dice loss of shape (batch,) is reshaped to (batch, 1, ..., 1) and broadcasted along every non-batch axis before addition.
//
// Default reduction is 'none'. 'mean' and 'sum' give scalar.
func CrossDiceLoss(yTrue, yPred *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	dice, err := DiceLoss(yTrue, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "[CrossDice] Can't prepare Dice part")
	}
	bce, err := BinaryCrossEntropyLoss(yTrue, yPred, LossReductionNone)
	if err != nil {
		return nil, errors.Wrap(err, "[CrossDice] Can't prepare cross entropy part")
	}
	lastAxis := yPred.Dims() - 1
	bceMean, err := gorgonia.Mean(bce, lastAxis)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't do mean(x) along axis %d", lastAxis))
	}

	var sum *gorgonia.Node
	if bceMean.Dims() < 2 {
		// Both parts have shape (batch,) already
		sum, err = gorgonia.Add(bceMean, dice)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (x+y)")
		}
	} else {
		batchSize := yPred.Shape()[0]
		broadcastShape := make(tensor.Shape, bceMean.Dims())
		pattern := make([]byte, 0, bceMean.Dims()-1)
		broadcastShape[0] = batchSize
		for i := 1; i < len(broadcastShape); i++ {
			broadcastShape[i] = 1
			pattern = append(pattern, byte(i))
		}
		diceReshaped, err := gorgonia.Reshape(dice, broadcastShape)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't reshape Dice part to %v", broadcastShape))
		}
		sum, err = gorgonia.BroadcastAdd(bceMean, diceReshaped, nil, pattern)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't add [in broadcast term with pattern %v] Dice part to cross entropy part", pattern))
		}
	}
	return reduce(sum, pickReduction(LossReductionNone, reduction))
}
