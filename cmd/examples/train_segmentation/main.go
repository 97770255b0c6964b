package main

import (
	"flag"
	"math/rand"
	"time"

	segloss "github.com/LdDl/segloss-go"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"
)

var (
	lossName     = flag.String("loss", segloss.LossNameCrossDice, "Loss: bce, dice, focal, cross_dice, tversky or focal_tversky")
	activation   = flag.String("activation", "isrlu", "Hidden layer activation")
	learningRate = flag.Float64("lr", 0.01, "Learning rate of RMSProp solver")
	batchSize    = flag.Int("batch", 16, "Batch size")
	numEpoches   = flag.Int("epochs", 30, "Number of epoches")
	numSamples   = flag.Int("samples", 512, "Number of synthetic samples")
	imgHeight    = flag.Int("height", 8, "Height of image")
	imgWidth     = flag.Int("width", 8, "Width of image")
	hiddenSize   = flag.Int("hidden", 32, "Size of hidden layer")
	evalPrint    = flag.Int("print", 5, "Print cost every N epoches")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	// Initialize seed with constant value to reproduce results
	rand.Seed(1337)

	trainSet, err := segloss.GenerateSegmentationSet(*numSamples, *imgHeight, *imgWidth)
	if err != nil {
		klog.Exitf("Can't generate training set: %v", err)
	}
	lossFn, err := segloss.LossByName(*lossName)
	if err != nil {
		klog.Exitf("Can't pick loss: %v", err)
	}
	hiddenActivation, err := segloss.ActivationByName(*activation)
	if err != nil {
		klog.Exitf("Can't pick activation: %v", err)
	}

	g := gorgonia.NewGraph()
	net := defineNetwork(g, hiddenActivation)

	input := gorgonia.NewTensor(g, gorgonia.Float64, 3, gorgonia.WithShape(*batchSize, *imgHeight, *imgWidth), gorgonia.WithName("segmentation_input"))
	if err = net.Fwd(input, *batchSize); err != nil {
		klog.Exitf("Can't feedforward: %v", err)
	}
	target := gorgonia.NewTensor(g, gorgonia.Float64, 3, gorgonia.WithShape(*batchSize, *imgHeight, *imgWidth), gorgonia.WithName("segmentation_target"))

	perSampleLoss, err := lossFn(target, net.Out())
	if err != nil {
		klog.Exitf("Can't define loss '%s': %v", *lossName, err)
	}
	cost, err := segloss.ReduceLoss(perSampleLoss)
	if err != nil {
		klog.Exitf("Can't reduce loss: %v", err)
	}
	gorgonia.WithName("segmentation_cost")(cost)
	if _, err = gorgonia.Grad(cost, net.Learnables()...); err != nil {
		klog.Exitf("Can't define gradients: %v", err)
	}

	var costVal gorgonia.Value
	gorgonia.Read(cost, &costVal)

	tm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(net.Learnables()...))
	defer tm.Close()
	solver := gorgonia.NewRMSPropSolver(gorgonia.WithBatchSize(float64(*batchSize)), gorgonia.WithLearnRate(*learningRate))

	batches := trainSet.DataLength / *batchSize
	if batches == 0 {
		klog.Exitf("Number of samples (%d) must not be less than batch size (%d)", trainSet.DataLength, *batchSize)
	}
	st := time.Now()
	for epoch := 0; epoch < *numEpoches; epoch++ {
		epochCost := 0.0
		for b := 0; b < batches; b++ {
			start := b * *batchSize
			images, masks, err := trainSet.Batch(start, start+*batchSize)
			if err != nil {
				klog.Exitf("Can't prepare batch #%d: %v", b, err)
			}
			if err = gorgonia.Let(input, images); err != nil {
				klog.Exitf("Can't init input value: %v", err)
			}
			if err = gorgonia.Let(target, masks); err != nil {
				klog.Exitf("Can't init target value: %v", err)
			}
			if err = tm.RunAll(); err != nil {
				klog.Exitf("Can't run VM: %v", err)
			}
			if err = segloss.CheckFinite(costVal); err != nil {
				klog.Exitf("Epoch #%d, batch #%d: %v", epoch, b, err)
			}
			if err = solver.Step(gorgonia.NodesToValueGrads(net.Learnables())); err != nil {
				klog.Exitf("Can't do solver step: %v", err)
			}
			vals, err := segloss.ValueToFloat64s(costVal)
			if err != nil {
				klog.Exitf("Can't read cost: %v", err)
			}
			epochCost += vals[0]
			tm.Reset()
		}
		if epoch%*evalPrint == 0 || epoch == *numEpoches-1 {
			klog.Infof("Epoch #%d: %s cost = %.6f", epoch, *lossName, epochCost/float64(batches))
		}
	}
	klog.Infof("Training took %v", time.Since(st))
}

func defineNetwork(g *gorgonia.ExprGraph, hiddenActivation segloss.ActivationFunc) *segloss.Network {
	size := *imgHeight * *imgWidth
	w0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(*hiddenSize, size), gorgonia.WithName("segmentation_w0"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	b0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, *hiddenSize), gorgonia.WithName("segmentation_b0"), gorgonia.WithInit(gorgonia.Zeroes()))
	w1 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(size, *hiddenSize), gorgonia.WithName("segmentation_w1"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	b1 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, size), gorgonia.WithName("segmentation_b1"), gorgonia.WithInit(gorgonia.Zeroes()))
	return &segloss.Network{
		Name: "segmentation",
		Layers: []*segloss.Layer{
			{
				Type: segloss.LayerFlatten,
			},
			{
				WeightNode: w0,
				BiasNode:   b0,
				Type:       segloss.LayerLinear,
				Activation: hiddenActivation,
			},
			{
				WeightNode: w1,
				BiasNode:   b1,
				Type:       segloss.LayerLinear,
			},
			{
				Type:        segloss.LayerReshape,
				ReshapeDims: tensor.Shape{*batchSize, *imgHeight, *imgWidth},
				Activation:  segloss.Sigmoid,
			},
		},
	}
}
