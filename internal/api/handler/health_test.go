package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/strokeworks/strokeseg/internal/dataset"
)

type staticDataset []string

func (d staticDataset) CaseIDs() []string { return d }

func (d staticDataset) Case(id string) (dataset.CaseFiles, error) {
	return dataset.CaseFiles{}, dataset.ErrCaseNotFound
}

type fixedLen int

func (f fixedLen) Len() int { return int(f) }

func TestListCases(t *testing.T) {
	h := NewListCasesHandler(staticDataset{"sub-stroke0001", "sub-stroke0002"})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/cases", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeData(t, rec)
	cases, ok := data["cases"].([]any)
	if !ok || len(cases) != 2 {
		t.Fatalf("cases = %v", data["cases"])
	}
	if cases[0] != "sub-stroke0001" {
		t.Errorf("cases[0] = %v", cases[0])
	}
}

func TestListCases_EmptyDatasetIsNotNull(t *testing.T) {
	h := NewListCasesHandler(staticDataset(nil))

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/cases", nil))

	data := decodeData(t, rec)
	if _, ok := data["cases"].([]any); !ok {
		t.Fatalf("cases should be an empty array, got %v", data["cases"])
	}
}

func TestRootHandler(t *testing.T) {
	h := NewRootHandler("2.0.0")

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	data := decodeData(t, rec)
	if data["status"] != "healthy" {
		t.Errorf("status = %v", data["status"])
	}
	if data["service"] != "strokeseg-api" {
		t.Errorf("service = %v", data["service"])
	}
	if data["version"] != "2.0.0" {
		t.Errorf("version = %v", data["version"])
	}
}

func TestHealthHandler(t *testing.T) {
	resultsDir := t.TempDir()
	h := NewHealthHandler(fixedLen(3), resultsDir)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	data := decodeData(t, rec)
	if data["jobsInMemory"] != float64(3) {
		t.Errorf("jobsInMemory = %v", data["jobsInMemory"])
	}
	if data["resultsDirExists"] != true {
		t.Errorf("resultsDirExists = %v", data["resultsDirExists"])
	}
}

func TestHealthHandler_MissingResultsDir(t *testing.T) {
	h := NewHealthHandler(fixedLen(0), "/nonexistent/results")

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	data := decodeData(t, rec)
	if data["resultsDirExists"] != false {
		t.Errorf("resultsDirExists = %v", data["resultsDirExists"])
	}
}
