package segloss

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput Returned when hyperparameters, shapes or dtypes can't be used to build a graph
	ErrInvalidInput = errors.New("invalid input")
	// ErrNumericalInstability Returned when evaluated values contain NaN or ±Inf
	ErrNumericalInstability = errors.New("numerical instability")
	// ErrUnknownName Returned by ActivationByName and LossByName
	ErrUnknownName = errors.New("unknown name")
)
