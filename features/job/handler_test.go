package job_test

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"corpora/features/job"
)

func TestHandler_List(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("List", mock.Anything).Return([]job.Job{
			{ID: "job-1", DocumentID: "doc-1", Error: "embedding failed", Attempts: 3},
		}, nil)

		handler := job.NewHandler(job.NewService(repo, new(MockPublisher), new(MockStatusUpdater), "ingest.task"))

		req := httptest.NewRequest("GET", "/jobs/failed", nil)
		w := httptest.NewRecorder()

		handler.List(w, req)

		resp := w.Result()
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&body)
		meta := body["meta"].(map[string]interface{})
		assert.Equal(t, float64(1), meta["count"])
	})

	t.Run("EmptyListIsNotNull", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("List", mock.Anything).Return([]job.Job(nil), nil)

		handler := job.NewHandler(job.NewService(repo, new(MockPublisher), new(MockStatusUpdater), "ingest.task"))

		req := httptest.NewRequest("GET", "/jobs/failed", nil)
		w := httptest.NewRecorder()

		handler.List(w, req)

		var body map[string]interface{}
		json.NewDecoder(w.Result().Body).Decode(&body)
		assert.NotNil(t, body["data"])
		assert.Len(t, body["data"], 0)
	})
}

func TestHandler_Retry_NotFound(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Get", mock.Anything, "99").Return(nil, sql.ErrNoRows)

	handler := job.NewHandler(job.NewService(repo, new(MockPublisher), new(MockStatusUpdater), "ingest.task"))

	req := httptest.NewRequest("POST", "/jobs/99/retry", nil)
	req.SetPathValue("id", "99")
	w := httptest.NewRecorder()

	handler.Retry(w, req)

	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}
