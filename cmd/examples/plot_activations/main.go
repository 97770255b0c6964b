package main

import (
	"flag"
	"fmt"

	segloss "github.com/LdDl/segloss-go"
	"k8s.io/klog/v2"
)

var (
	outputFolder = flag.String("output", "./output", "Folder for charts")
	alpha        = flag.Float64("alpha", segloss.DefaultAlpha, "Saturation hyperparameter for ISRLU and ISRU")
	from         = flag.Float64("from", -5, "Left bound of X")
	to           = flag.Float64("to", 5, "Right bound of X")
	numPoints    = flag.Int("points", 200, "Number of points on each curve")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	activations := []struct {
		name string
		fn   segloss.ActivationFunc
	}{
		{"ISRLU", segloss.ISRLU},
		{"ISRU", segloss.ISRU},
		{"bent identity", segloss.BentIdentity},
	}
	opts := segloss.Options{Alpha: *alpha}

	curves := make([]segloss.Curve, 0, len(activations))
	for _, act := range activations {
		curve, err := segloss.SampleActivation(act.name, act.fn, *from, *to, *numPoints, opts)
		if err != nil {
			klog.Exitf("Can't sample activation '%s': %v", act.name, err)
		}
		curves = append(curves, curve)
		klog.Infof("%s: f(%.2f) = %.4f, f(%.2f) = %.4f", act.name, curve.X[0], curve.Y[0], curve.X[len(curve.X)-1], curve.Y[len(curve.Y)-1])
	}

	fname := fmt.Sprintf("%s/activations.png", *outputFolder)
	if err := segloss.PlotCurves(fname, curves...); err != nil {
		klog.Exitf("Can't plot activations: %v", err)
	}
	klog.Infof("Chart has been saved to %s", fname)
}
