package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// File names searched inside each case directory. DeepISLES consumes the
// first three; the mask is only used for Dice scoring.
const (
	dwiFile   = "dwi.nii.gz"
	adcFile   = "adc.nii.gz"
	flairFile = "flair.nii.gz"
	maskFile  = "mask.nii.gz"
	truthFile = "ground_truth.nii.gz"
)

// LocalDataset reads cases from a directory tree of the form
// root/<case-id>/{dwi,adc,flair,mask}.nii.gz.
type LocalDataset struct {
	root string
	ids  []string
}

// OpenLocal scans root and returns a dataset of every subdirectory that
// contains the required DWI and ADC files. Subdirectories missing either
// file are skipped silently; an empty result is not an error.
func OpenLocal(root string) (*LocalDataset, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dataset root: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if fileExists(filepath.Join(dir, dwiFile)) && fileExists(filepath.Join(dir, adcFile)) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)

	return &LocalDataset{root: root, ids: ids}, nil
}

func (d *LocalDataset) CaseIDs() []string {
	out := make([]string, len(d.ids))
	copy(out, d.ids)
	return out
}

func (d *LocalDataset) Case(id string) (CaseFiles, error) {
	found := false
	for _, known := range d.ids {
		if known == id {
			found = true
			break
		}
	}
	if !found {
		return CaseFiles{}, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
	}

	dir := filepath.Join(d.root, id)
	files := CaseFiles{
		DWI: filepath.Join(dir, dwiFile),
		ADC: filepath.Join(dir, adcFile),
	}
	if p := filepath.Join(dir, flairFile); fileExists(p) {
		files.FLAIR = p
	}
	if p := filepath.Join(dir, maskFile); fileExists(p) {
		files.GroundTruth = p
	} else if p := filepath.Join(dir, truthFile); fileExists(p) {
		files.GroundTruth = p
	}
	return files, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
