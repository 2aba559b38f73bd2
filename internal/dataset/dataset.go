// Package dataset provides access to ISLES'24 stroke imaging cases and
// stages their NIfTI files into the layout DeepISLES expects.
package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrCaseNotFound means the requested case id is not in the dataset.
	ErrCaseNotFound = errors.New("case not found")

	// ErrMissingInput means a required input file (DWI or ADC) is absent.
	ErrMissingInput = errors.New("required input file missing")
)

// CaseFiles holds paths to the NIfTI files of one case. DWI and ADC are
// required; FLAIR and GroundTruth are empty when the case lacks them.
type CaseFiles struct {
	DWI         string
	ADC         string
	FLAIR       string
	GroundTruth string
}

// Dataset provides ordered access to stroke imaging cases.
type Dataset interface {
	// CaseIDs lists all case identifiers in stable order.
	CaseIDs() []string
	// Case resolves the files for one case. Returns ErrCaseNotFound for
	// unknown ids.
	Case(id string) (CaseFiles, error)
}

// Open builds a Dataset from configuration: a YAML manifest when one is
// given, a directory scan of root otherwise.
func Open(root, manifest string) (Dataset, error) {
	if manifest != "" {
		return LoadManifest(manifest, root)
	}
	return OpenLocal(root)
}

// CaseByIndex resolves a case by its position in CaseIDs. Used by the CLI
// --index flag.
func CaseByIndex(ds Dataset, index int) (string, CaseFiles, error) {
	ids := ds.CaseIDs()
	if index < 0 || index >= len(ids) {
		return "", CaseFiles{}, fmt.Errorf("case index %d out of range (0-%d)", index, len(ids)-1)
	}
	files, err := ds.Case(ids[index])
	return ids[index], files, err
}
