package segloss

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// SegmentationSet Images and binary masks of the same shape (numSamples, height, width)
type SegmentationSet struct {
	Images     *tensor.Dense
	Masks      *tensor.Dense
	DataLength int
	Height     int
	Width      int
}

// GenerateSegmentationSet Generates synthetic segmentation samples.
//
// Every mask is a random axis-aligned rectangle filled with ones.
// Every image is 0.8*mask + 0.2*uniform noise.
//
func GenerateSegmentationSet(numSamples, height, width int) (*SegmentationSet, error) {
	if numSamples < 1 || height < 2 || width < 2 {
		return nil, fmt.Errorf("Can't generate %d samples of size %dx%d", numSamples, height, width)
	}
	size := height * width
	images := make([]float64, numSamples*size)
	masks := make([]float64, numSamples*size)
	for s := 0; s < numSamples; s++ {
		top := rand.Intn(height - 1)
		left := rand.Intn(width - 1)
		bottom := top + 1 + rand.Intn(height-top-1)
		right := left + 1 + rand.Intn(width-left-1)
		for i := 0; i < height; i++ {
			for j := 0; j < width; j++ {
				idx := s*size + i*width + j
				if i >= top && i <= bottom && j >= left && j <= right {
					masks[idx] = 1
				}
				images[idx] = 0.8*masks[idx] + 0.2*rand.Float64()
			}
		}
	}
	return &SegmentationSet{
		Images:     tensor.New(tensor.WithShape(numSamples, height, width), tensor.WithBacking(images)),
		Masks:      tensor.New(tensor.WithShape(numSamples, height, width), tensor.WithBacking(masks)),
		DataLength: numSamples,
		Height:     height,
		Width:      width,
	}, nil
}

// Batch Returns materialized images and masks for samples [start; end)
func (set *SegmentationSet) Batch(start, end int) (tensor.Tensor, tensor.Tensor, error) {
	if start < 0 || end > set.DataLength || start >= end {
		return nil, nil, fmt.Errorf("Bad batch bounds [%d; %d) for %d samples", start, end, set.DataLength)
	}
	images, err := set.Images.Slice(SlicerOneStep{StartIdx: start, EndIdx: end})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't slice images")
	}
	masks, err := set.Masks.Slice(SlicerOneStep{StartIdx: start, EndIdx: end})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't slice masks")
	}
	imagesBatch := images.Materialize()
	masksBatch := masks.Materialize()
	// Crutch for keeping batch dimension when batch size is 1
	if err = imagesBatch.Reshape(end-start, set.Height, set.Width); err != nil {
		return nil, nil, errors.Wrap(err, "Can't reshape images batch")
	}
	if err = masksBatch.Reshape(end-start, set.Height, set.Width); err != nil {
		return nil, nil, errors.Wrap(err, "Can't reshape masks batch")
	}
	return imagesBatch, masksBatch, nil
}
