package handler

import (
	"net/http"

	"github.com/strokeworks/strokeseg/internal/api/response"
	"github.com/strokeworks/strokeseg/internal/dataset"
)

// NewListCasesHandler returns the handler for GET /api/cases.
func NewListCasesHandler(ds dataset.Dataset) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cases := ds.CaseIDs()
		if cases == nil {
			cases = []string{}
		}
		response.JSON(w, casesResponse{Cases: cases})
	}
}

type casesResponse struct {
	Cases []string `json:"cases"`
}
