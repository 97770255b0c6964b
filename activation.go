package segloss

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// DefaultAlpha Saturation hyperparameter used by ISRLU and ISRU when no option provides one
const DefaultAlpha = 1.0

// ActivationFunc Just an alias to Gorgonia'a api_gen.go - https://github.com/gorgonia/gorgonia/blob/master/api_gen.go#L1
type ActivationFunc func(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)

// Options Struct for holding options for certain activation functions.
//
// Axis - used by Softmax
// Alpha - used by ISRLU and ISRU. Zero value means "not provided"
//
type Options struct {
	Axis  []int
	Alpha float64
}

func NoActivation(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) { return a, nil }
func Sigmoid(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Sigmoid(a) }
func Tanh(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Rectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }
func Softplus(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)     { return gorgonia.Softplus(a) }
func Softmax(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	for i := range opts {
		// First i-th option with provided field 'Axis' would be considered for use.
		if len(opts[i].Axis) > 0 {
			return gorgonia.SoftMax(a, opts[i].Axis...)
		}
	}
	return gorgonia.SoftMax(a)
}

// alphaFromOptions First i-th option with non-zero 'Alpha' wins
func alphaFromOptions(opts []Options) float64 {
	for i := range opts {
		if opts[i].Alpha != 0 {
			return opts[i].Alpha
		}
	}
	return DefaultAlpha
}

func checkAlpha(alpha float64) error {
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) || alpha < 0 {
		return errors.Wrapf(ErrInvalidInput, "alpha must be finite and non-negative, but got %v", alpha)
	}
	return nil
}

// ISRU Inverse square root unit. See ref. https://arxiv.org/pdf/1710.09967.pdf
//
// ISRU(x) = x / √(1 + α*x²)
//
// Alpha is taken from options, default is DefaultAlpha
func ISRU(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	return ISRUWithAlpha(a, alphaFromOptions(opts))
}

// ISRUWithAlpha Same as ISRU, but with explicit alpha.
// Output is bounded by ±1/√α for α > 0; α = 0 gives identity.
//
// Input is scaled by m = max(|x|, 1) so x² never overflows:
// ISRU(x) = (x/m) / √((1/m)² + α*(x/m)²)
func ISRUWithAlpha(a *gorgonia.Node, alpha float64) (*gorgonia.Node, error) {
	if err := checkAlpha(alpha); err != nil {
		return nil, err
	}
	if err := checkDtype(a); err != nil {
		return nil, err
	}
	alphaConst, err := constLike(a, alpha)
	if err != nil {
		return nil, err
	}
	oneConst, err := constLike(a, 1.0)
	if err != nil {
		return nil, err
	}

	// m = 1 + relu(|x| - 1)
	abs, err := gorgonia.Abs(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do |x|")
	}
	absSubOne, err := gorgonia.Sub(abs, oneConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X-1.)")
	}
	excess, err := gorgonia.Rectify(absSubOne)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do relu(x)")
	}
	scale, err := gorgonia.Add(oneConst, excess)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1.+X)")
	}

	scaled, err := gorgonia.HadamardDiv(a, scale)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A./m)")
	}
	invScale, err := gorgonia.HadamardDiv(oneConst, scale)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1./m)")
	}
	invScaleSqr, err := gorgonia.Square(invScale)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	scaledSqr, err := gorgonia.Square(scaled)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	weighted, err := gorgonia.Mul(alphaConst, scaledSqr)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (alpha*X)")
	}
	sum, err := gorgonia.Add(invScaleSqr, weighted)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	sqrt, err := gorgonia.Sqrt(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do √x")
	}
	div, err := gorgonia.HadamardDiv(scaled, sqrt)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A./X)")
	}
	return div, nil
}

// ISRLU Inverse square root linear unit. See ref. https://arxiv.org/pdf/1710.09967.pdf
//
// ISRLU(x) = x, x >= 0
// ISRLU(x) = x / √(1 + α*x²), x < 0
//
// Both branches are evaluated for every element and combined through the mask (x >= 0).
// The mask is not differentiable, so the gradient at x = 0 is the one of the identity branch.
//
// Alpha is taken from options, default is DefaultAlpha
func ISRLU(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	return ISRLUWithAlpha(a, alphaFromOptions(opts))
}

// ISRLUWithAlpha Same as ISRLU, but with explicit alpha
func ISRLUWithAlpha(a *gorgonia.Node, alpha float64) (*gorgonia.Node, error) {
	negBranch, err := ISRUWithAlpha(a, alpha)
	if err != nil {
		return nil, errors.Wrap(err, "Can't prepare negative branch")
	}
	zeroConst, err := constLike(a, 0.0)
	if err != nil {
		return nil, err
	}
	oneConst, err := constLike(a, 1.0)
	if err != nil {
		return nil, err
	}
	mask, err := gorgonia.Gte(a, zeroConst, true)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A >= 0)")
	}
	invMask, err := gorgonia.Sub(oneConst, mask)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1.-mask)")
	}
	posPart, err := gorgonia.HadamardProd(mask, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (mask.*A)")
	}
	negPart, err := gorgonia.HadamardProd(invMask, negBranch)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do ((1-mask).*X)")
	}
	sum, err := gorgonia.Add(posPart, negPart)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	return sum, nil
}

// BentIdentity See ref. https://en.wikipedia.org/wiki/Activation_function
//
// bentID(x) = (√(x² + 1) - 1) / 2 + x
//
// Options are ignored
func BentIdentity(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	if err := checkDtype(a); err != nil {
		return nil, err
	}
	oneConst, err := constLike(a, 1.0)
	if err != nil {
		return nil, err
	}
	halfConst, err := constLike(a, 0.5)
	if err != nil {
		return nil, err
	}
	sqr, err := gorgonia.Square(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	addOne, err := gorgonia.Add(sqr, oneConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X+1.)")
	}
	sqrt, err := gorgonia.Sqrt(addOne)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do √x")
	}
	subOne, err := gorgonia.Sub(sqrt, oneConst)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X-1.)")
	}
	half, err := gorgonia.Mul(halfConst, subOne)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (0.5*X)")
	}
	sum, err := gorgonia.Add(half, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X+A)")
	}
	return sum, nil
}

// ActivationByName Returns activation function for its snake-case name.
//
// Available values are: none, sigmoid, tanh, relu, softplus, softmax, isrlu, isru, bent_identity (or bentid)
func ActivationByName(name string) (ActivationFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return NoActivation, nil
	case "sigmoid":
		return Sigmoid, nil
	case "tanh":
		return Tanh, nil
	case "relu":
		return Rectify, nil
	case "softplus":
		return Softplus, nil
	case "softmax":
		return Softmax, nil
	case "isrlu":
		return ISRLU, nil
	case "isru":
		return ISRU, nil
	case "bent_identity", "bentid":
		return BentIdentity, nil
	default:
		return nil, errors.Wrapf(ErrUnknownName, "activation '%s'", name)
	}
}
