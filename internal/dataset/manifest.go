package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest maps case ids to file paths relative to a data root. It is the
// authoritative case list for hub-style datasets where scanning the
// directory layout is not possible or too slow.
type Manifest struct {
	DatasetID string         `yaml:"dataset_id"`
	Revision  string         `yaml:"revision"`
	Cases     []ManifestCase `yaml:"cases"`
}

type ManifestCase struct {
	ID    string `yaml:"id"`
	DWI   string `yaml:"dwi"`
	ADC   string `yaml:"adc"`
	FLAIR string `yaml:"flair,omitempty"`
	Mask  string `yaml:"mask,omitempty"`
}

// ManifestDataset serves cases from a parsed manifest.
type ManifestDataset struct {
	root  string
	ids   []string
	cases map[string]ManifestCase
}

// LoadManifest parses and validates a YAML manifest. All file paths must
// be relative and confined to root; case ids must be unique and every
// case needs DWI and ADC entries.
func LoadManifest(path, root string) (*ManifestDataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Cases) == 0 {
		return nil, fmt.Errorf("manifest %s lists no cases", path)
	}

	ds := &ManifestDataset{
		root:  root,
		ids:   make([]string, 0, len(m.Cases)),
		cases: make(map[string]ManifestCase, len(m.Cases)),
	}
	for i, c := range m.Cases {
		if c.ID == "" {
			return nil, fmt.Errorf("manifest case %d has no id", i)
		}
		if _, dup := ds.cases[c.ID]; dup {
			return nil, fmt.Errorf("manifest has duplicate case id %q", c.ID)
		}
		if c.DWI == "" || c.ADC == "" {
			return nil, fmt.Errorf("manifest case %q missing dwi or adc path", c.ID)
		}
		for _, rel := range []string{c.DWI, c.ADC, c.FLAIR, c.Mask} {
			if rel == "" {
				continue
			}
			if filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
				return nil, fmt.Errorf("manifest case %q has non-local path %q", c.ID, rel)
			}
		}
		ds.cases[c.ID] = c
		ds.ids = append(ds.ids, c.ID)
	}

	return ds, nil
}

func (d *ManifestDataset) CaseIDs() []string {
	out := make([]string, len(d.ids))
	copy(out, d.ids)
	return out
}

func (d *ManifestDataset) Case(id string) (CaseFiles, error) {
	c, ok := d.cases[id]
	if !ok {
		return CaseFiles{}, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
	}

	files := CaseFiles{
		DWI: filepath.Join(d.root, c.DWI),
		ADC: filepath.Join(d.root, c.ADC),
	}
	if c.FLAIR != "" {
		files.FLAIR = filepath.Join(d.root, c.FLAIR)
	}
	if c.Mask != "" {
		files.GroundTruth = filepath.Join(d.root, c.Mask)
	}
	return files, nil
}
