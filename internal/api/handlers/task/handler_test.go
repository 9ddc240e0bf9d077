package task

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-crawler/internal/model"
	"github.com/aliskhannn/image-crawler/internal/publisher"
	tasksvc "github.com/aliskhannn/image-crawler/internal/service/task"
)

type fakeService struct {
	got model.ImageTask
	err error
}

func (f *fakeService) Submit(task model.ImageTask) (model.ImageTask, error) {
	f.got = task
	if f.err != nil {
		return model.ImageTask{}, f.err
	}
	if task.Identifier == "" {
		task.Identifier = "generated"
	}
	return task, nil
}

func serve(t *testing.T, s service, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := ginext.New()
	r.POST("/api/tasks", NewHandler(s).Submit)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	return rec
}

func TestSubmit(t *testing.T) {
	s := &fakeService{}

	rec := serve(t, s, `{"url":"https://example.test/a.jpg","source":"example"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "https://example.test/a.jpg", s.got.URL)
	assert.Equal(t, "example", s.got.Source)

	var resp struct {
		Result model.ImageTask `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "generated", resp.Result.Identifier)
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"missing url", `{}`, tasksvc.ErrMissingURL, http.StatusBadRequest},
		{"buffer full", `{"url":"u"}`, errors.Join(errors.New("submit"), publisher.ErrBufferFull), http.StatusServiceUnavailable},
		{"other", `{"url":"u"}`, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeService{err: tt.err}, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}
