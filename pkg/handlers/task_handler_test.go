package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/qbank-labs/question-engine/pkg/apperrors"
	"github.com/qbank-labs/question-engine/pkg/services/workqueue"
)

type fakeDispatcher struct {
	ocr      []uuid.UUID
	rewrites []uuid.UUID
	slots    []int
	err      error
}

func (d *fakeDispatcher) DispatchOCR(_ context.Context, id uuid.UUID) error {
	if d.err != nil {
		return d.err
	}
	d.ocr = append(d.ocr, id)
	return nil
}

func (d *fakeDispatcher) DispatchRewrites(_ context.Context, id uuid.UUID) error {
	if d.err != nil {
		return d.err
	}
	d.rewrites = append(d.rewrites, id)
	return nil
}

func (d *fakeDispatcher) DispatchSlotRewrite(_ context.Context, id uuid.UUID, index int) error {
	if d.err != nil {
		return d.err
	}
	d.slots = append(d.slots, index)
	return nil
}

func newTaskMux(dispatcher *fakeDispatcher) *http.ServeMux {
	mux := http.NewServeMux()
	handler := NewTaskHandler(dispatcher, workqueue.New(zap.NewNop()), zap.NewNop())
	handler.RegisterRoutes(mux)
	return mux
}

func TestTriggerOCREnqueues(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	mux := newTaskMux(dispatcher)

	id := uuid.New()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/questions/"+id.String()+"/ocr", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []uuid.UUID{id}, dispatcher.ocr)
}

func TestTriggerRejectsBadUUID(t *testing.T) {
	mux := newTaskMux(&fakeDispatcher{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/questions/not-a-uuid/ocr", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerUnknownQuestionReturns404(t *testing.T) {
	mux := newTaskMux(&fakeDispatcher{err: apperrors.ErrNotFound})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/questions/"+uuid.NewString()+"/rewrites", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerSlotRewriteValidatesIndex(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	mux := newTaskMux(dispatcher)
	id := uuid.NewString()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/questions/"+id+"/rewrites/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/questions/"+id+"/rewrites/3", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int{3}, dispatcher.slots)
}

func TestTriggerSlotRewriteOutOfRangeIs422(t *testing.T) {
	mux := newTaskMux(&fakeDispatcher{err: fmt.Errorf("dispatch: %w", apperrors.ErrInvalidSlotIndex)})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/questions/"+uuid.NewString()+"/rewrites/6", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestQueueSnapshotListsTasks(t *testing.T) {
	mux := newTaskMux(&fakeDispatcher{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queue", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tasks")
}
