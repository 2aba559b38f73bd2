package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StagedCase holds the paths of files staged for a DeepISLES run.
type StagedCase struct {
	InputDir  string
	DWIPath   string
	ADCPath   string
	FLAIRPath string // empty when the case has no FLAIR
}

// Stage copies case files into stageDir under the exact names DeepISLES
// requires (dwi.nii.gz, adc.nii.gz, flair.nii.gz). DWI and ADC are
// mandatory; a missing source file yields ErrMissingInput.
func Stage(files CaseFiles, stageDir string) (StagedCase, error) {
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return StagedCase{}, fmt.Errorf("create staging dir: %w", err)
	}

	staged := StagedCase{InputDir: stageDir}

	if files.DWI == "" {
		return StagedCase{}, fmt.Errorf("%w: dwi", ErrMissingInput)
	}
	staged.DWIPath = filepath.Join(stageDir, dwiFile)
	if err := copyFile(files.DWI, staged.DWIPath); err != nil {
		return StagedCase{}, fmt.Errorf("stage dwi: %w", err)
	}

	if files.ADC == "" {
		return StagedCase{}, fmt.Errorf("%w: adc", ErrMissingInput)
	}
	staged.ADCPath = filepath.Join(stageDir, adcFile)
	if err := copyFile(files.ADC, staged.ADCPath); err != nil {
		return StagedCase{}, fmt.Errorf("stage adc: %w", err)
	}

	if files.FLAIR != "" {
		staged.FLAIRPath = filepath.Join(stageDir, flairFile)
		if err := copyFile(files.FLAIR, staged.FLAIRPath); err != nil {
			return StagedCase{}, fmt.Errorf("stage flair: %w", err)
		}
	}

	return staged, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingInput, src)
		}
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
