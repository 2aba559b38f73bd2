package segmentation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strokeworks/strokeseg/internal/dataset"
	"github.com/strokeworks/strokeseg/internal/inference"
	"github.com/strokeworks/strokeseg/internal/jobs"
	"github.com/strokeworks/strokeseg/internal/nifti"
	"github.com/strokeworks/strokeseg/internal/pipeline"
)

func fixtureDataset(t *testing.T, caseID string) dataset.Dataset {
	t.Helper()
	root := t.TempDir()
	caseDir := filepath.Join(root, caseID)
	require.NoError(t, os.MkdirAll(caseDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(caseDir, "dwi.nii.gz"), []byte("dwi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(caseDir, "adc.nii.gz"), []byte("adc"), 0o644))

	img := &nifti.Image{Dim: [3]int{8, 8, 1}, Pixdim: [3]float64{1, 1, 1}, Data: make([]float64, 64)}
	for y := 2; y < 5; y++ {
		for x := 2; x < 5; x++ {
			img.Data[y*8+x] = 1
		}
	}
	require.NoError(t, nifti.Save(img, filepath.Join(caseDir, "ground_truth.nii.gz")))

	ds, err := dataset.OpenLocal(root)
	require.NoError(t, err)
	return ds
}

func newTestService(t *testing.T, runner inference.Runner) (*Service, *jobs.Store) {
	t.Helper()
	resultsDir := t.TempDir()
	store := jobs.NewStore(resultsDir)
	p := pipeline.New(fixtureDataset(t, "sub-001"), runner, nil)
	return NewService(store, p, resultsDir, "http://localhost:8080", nil), store
}

func waitTerminal(t *testing.T, store *jobs.Store, id string) jobs.Job {
	t.Helper()
	var job jobs.Job
	require.Eventually(t, func() bool {
		j, ok := store.Get(id)
		if !ok {
			return false
		}
		job = j
		return j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestEnqueue_CompletesWithResult(t *testing.T) {
	svc, store := newTestService(t, inference.NewMockRunner())

	job, err := svc.Enqueue(context.Background(), "sub-001", true)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.Len(t, job.ID, 8)

	done := waitTerminal(t, store, job.ID)
	require.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, "Segmentation complete", done.ProgressMessage)

	res := done.Result
	require.NotNil(t, res)
	assert.Equal(t, "sub-001", res.CaseID)
	require.NotNil(t, res.DiceScore)
	assert.InDelta(t, 1.0, *res.DiceScore, 1e-9)
	require.NotNil(t, res.VolumeML)
	assert.InDelta(t, 0.01, *res.VolumeML, 1e-9) // 9 voxels of 1mm³, rounded

	prefix := fmt.Sprintf("http://localhost:8080/files/%s/sub-001/", job.ID)
	assert.Equal(t, prefix+"dwi.nii.gz", res.DWIURL)
	assert.Equal(t, prefix+"lesion_msk.nii.gz", res.PredictionURL)

	// Served files must exist under resultsDir/{job}/{case}/.
	caseDir := filepath.Join(svc.ResultsDir(), job.ID, "sub-001")
	assert.FileExists(t, filepath.Join(caseDir, "dwi.nii.gz"))
	assert.FileExists(t, filepath.Join(caseDir, "lesion_msk.nii.gz"))
}

func TestEnqueue_StagingCleanedUp(t *testing.T) {
	svc, store := newTestService(t, inference.NewMockRunner())

	job, err := svc.Enqueue(context.Background(), "sub-001", true)
	require.NoError(t, err)
	waitTerminal(t, store, job.ID)

	assert.NoDirExists(t, filepath.Join(svc.ResultsDir(), job.ID, "staging"))
}

func TestEnqueue_RunnerFailureFailsJob(t *testing.T) {
	svc, store := newTestService(t, &inference.MockRunner{Err: errors.New("model exploded")})

	job, err := svc.Enqueue(context.Background(), "sub-001", false)
	require.NoError(t, err)

	done := waitTerminal(t, store, job.ID)
	require.Equal(t, jobs.StatusFailed, done.Status)
	assert.Contains(t, done.Err, "model exploded")
	assert.Equal(t, "Error occurred", done.ProgressMessage)
	// Progress stays where the run got to.
	assert.Equal(t, 30, done.Progress)
	assert.Nil(t, done.Result)
}

func TestEnqueue_UnknownCaseFailsJob(t *testing.T) {
	svc, store := newTestService(t, inference.NewMockRunner())

	job, err := svc.Enqueue(context.Background(), "sub-404", true)
	require.NoError(t, err)

	done := waitTerminal(t, store, job.ID)
	require.Equal(t, jobs.StatusFailed, done.Status)
	assert.Contains(t, done.Err, "sub-404")
}

func TestEnqueue_PanicLandsInFailed(t *testing.T) {
	runner := &inference.MockRunner{RunFunc: func(context.Context, inference.Request) (inference.Result, error) {
		panic("boom")
	}}
	svc, store := newTestService(t, runner)

	job, err := svc.Enqueue(context.Background(), "sub-001", true)
	require.NoError(t, err)

	done := waitTerminal(t, store, job.ID)
	require.Equal(t, jobs.StatusFailed, done.Status)
	assert.Contains(t, done.Err, "internal error")
}

func TestEnqueue_DistinctJobIDs(t *testing.T) {
	svc, store := newTestService(t, inference.NewMockRunner())

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		job, err := svc.Enqueue(context.Background(), "sub-001", true)
		require.NoError(t, err)
		assert.False(t, seen[job.ID])
		seen[job.ID] = true
		waitTerminal(t, store, job.ID)
	}
}
