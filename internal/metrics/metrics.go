// Package metrics evaluates segmentation quality against ground truth.
package metrics

import (
	"fmt"

	"github.com/strokeworks/strokeseg/internal/nifti"
)

// DefaultThreshold binarizes probabilistic masks. The same threshold is
// used for Dice and volume so both reflect the same decision boundary.
const DefaultThreshold = 0.5

// Dice computes the Dice similarity coefficient between two masks:
// 2*|P∩G| / (|P|+|G|). Both masks empty yields 1.0. Returns an error on
// shape mismatch.
func Dice(predictionPath, groundTruthPath string, threshold float64) (float64, error) {
	pred, err := nifti.Load(predictionPath)
	if err != nil {
		return 0, fmt.Errorf("load prediction: %w", err)
	}
	truth, err := nifti.Load(groundTruthPath)
	if err != nil {
		return 0, fmt.Errorf("load ground truth: %w", err)
	}

	if pred.Dim != truth.Dim {
		return 0, fmt.Errorf("shape mismatch: prediction %v vs ground truth %v", pred.Dim, truth.Dim)
	}

	var intersection, total int
	for i := range pred.Data {
		p := pred.Data[i] > threshold
		g := truth.Data[i] > threshold
		if p && g {
			intersection++
		}
		if p {
			total++
		}
		if g {
			total++
		}
	}

	if total == 0 {
		return 1.0, nil
	}
	return 2.0 * float64(intersection) / float64(total), nil
}

// VolumeML computes the lesion volume of a binarized mask in
// millilitres, using the voxel dimensions recorded in the file.
func VolumeML(maskPath string, threshold float64) (float64, error) {
	mask, err := nifti.Load(maskPath)
	if err != nil {
		return 0, fmt.Errorf("load mask: %w", err)
	}

	var voxels int
	for _, v := range mask.Data {
		if v > threshold {
			voxels++
		}
	}

	return float64(voxels) * mask.VoxelVolumeMM3() / 1000.0, nil
}
