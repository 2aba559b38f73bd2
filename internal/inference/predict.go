package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Output names seen across DeepISLES versions. The container writes
// into a results/ subdirectory, the conda adapter writes lesion_msk.nii.gz
// directly into the output directory.
var predictionNames = []string{
	"lesion_msk.nii.gz",
	"prediction.nii.gz",
	"pred.nii.gz",
	"lesion_mask.nii.gz",
	"output.nii.gz",
	"ensemble_prediction.nii.gz",
}

// ValidateInputDir checks that the staged directory holds the required
// DWI and ADC volumes and reports whether FLAIR is present.
func ValidateInputDir(inputDir string) (hasFLAIR bool, err error) {
	for _, name := range []string{DWIFileName, ADCFileName} {
		if _, statErr := os.Stat(filepath.Join(inputDir, name)); statErr != nil {
			return false, fmt.Errorf("%w: %s not found in %s", ErrMissingInput, name, inputDir)
		}
	}
	_, statErr := os.Stat(filepath.Join(inputDir, FLAIRFileName))
	return statErr == nil, nil
}

// FindPredictionMask locates the lesion mask in a DeepISLES output
// directory. It checks the results/ subdirectory first, then the output
// directory itself, trying known names before falling back to any
// .nii.gz that is not a copied input volume.
func FindPredictionMask(outputDir string) (string, error) {
	searchDirs := []string{outputDir}
	if resultsDir := filepath.Join(outputDir, "results"); dirExists(resultsDir) {
		searchDirs = []string{resultsDir, outputDir}
	}

	for _, dir := range searchDirs {
		for _, name := range predictionNames {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		if p := anyMaskIn(dir); p != "" {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoPrediction, outputDir)
}

// anyMaskIn returns the first .nii.gz in dir that does not look like a
// copied input volume, or "" when none exists.
func anyMaskIn(dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.nii.gz"))
	if err != nil {
		return ""
	}
	for _, m := range matches {
		lower := strings.ToLower(filepath.Base(m))
		if strings.Contains(lower, "dwi") || strings.Contains(lower, "adc") || strings.Contains(lower, "flair") {
			continue
		}
		return m
	}
	return ""
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
