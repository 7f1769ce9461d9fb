package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qbank-labs/question-engine/pkg/apperrors"
	"github.com/qbank-labs/question-engine/pkg/models"
	"github.com/qbank-labs/question-engine/pkg/ocr"
)

type fakeStore struct {
	objects map[string][]byte
}

func (s *fakeStore) Fetch(_ context.Context, locator string) ([]byte, error) {
	data, ok := s.objects[locator]
	if !ok {
		return nil, fmt.Errorf("object %s not found", locator)
	}
	return data, nil
}

func (s *fakeStore) Store(_ context.Context, _ []byte, _ string) (string, error) {
	return "", errors.New("not implemented")
}

type fakeOCRClient struct {
	submitErr error
	pollErr   error
	results   []ocr.FileResult
	docs      map[string]string // zip url -> markdown
	submitted [][]ocr.File
}

func (c *fakeOCRClient) Submit(_ context.Context, files []ocr.File) (ocr.Batch, error) {
	c.submitted = append(c.submitted, files)
	if c.submitErr != nil {
		return ocr.Batch{}, c.submitErr
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return ocr.Batch{ID: "batch-1", Files: names}, nil
}

func (c *fakeOCRClient) Poll(_ context.Context, _ string) ([]ocr.FileResult, error) {
	if c.pollErr != nil {
		return nil, c.pollErr
	}
	return c.results, nil
}

func (c *fakeOCRClient) FetchDocument(_ context.Context, zipURL string) (string, error) {
	doc, ok := c.docs[zipURL]
	if !ok {
		return "", fmt.Errorf("archive %s not found", zipURL)
	}
	return doc, nil
}

func staticFactory(client OCRClient, err error) OCRClientFactory {
	return func(context.Context) (OCRClient, error) { return client, err }
}

func newOCRTaskFixture(t *testing.T, images []string) (WorkflowService, *models.Question, *fakeStore) {
	t.Helper()
	svc := NewWorkflowService(newMemQuestionRepo(), allRolesPolicy(), zap.NewNop())
	q, err := svc.Create(context.Background(), CreateQuestionInput{Images: images})
	require.NoError(t, err)

	store := &fakeStore{objects: map[string][]byte{}}
	for _, img := range images {
		store.objects[img] = []byte("png-bytes")
	}
	return svc, q, store
}

func TestOCRTaskSavesConcatenatedDocuments(t *testing.T) {
	images := []string{"http://files/a.png", "http://files/b.png"}
	svc, q, store := newOCRTaskFixture(t, images)

	client := &fakeOCRClient{
		docs: map[string]string{
			"http://zips/1.zip": "# Page one",
			"http://zips/2.zip": "# Page two",
		},
	}
	client.results = []ocr.FileResult{
		{FileName: "001-a.png", State: ocr.StateDone, FullZipURL: "http://zips/1.zip"},
		{FileName: "002-b.png", State: ocr.StateDone, FullZipURL: "http://zips/2.zip"},
	}

	task := NewOCRExtractionTask(q.ID, svc, store, staticFactory(client, nil), zap.NewNop())
	require.NoError(t, task.Execute(context.Background(), nil))

	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOCREditing, got.Status)
	assert.Equal(t, "# Page one\n\n---\n\n# Page two", got.OCRRawQuestion)
	assert.Equal(t, PlaceholderPendingAnswer, got.DraftAnswer)
	require.Len(t, client.submitted, 1)
	assert.Len(t, client.submitted[0], 2)
}

func TestOCRTaskFailsWithoutImages(t *testing.T) {
	svc, q, store := newOCRTaskFixture(t, nil)

	task := NewOCRExtractionTask(q.ID, svc, store, staticFactory(&fakeOCRClient{}, nil), zap.NewNop())
	err := task.Execute(context.Background(), nil)
	require.ErrorIs(t, err, apperrors.ErrNoSourceImages)

	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, got.Status)
}

func TestOCRTaskDegradesToPlaceholdersWhenUnconfigured(t *testing.T) {
	svc, q, store := newOCRTaskFixture(t, []string{"http://files/a.png"})

	task := NewOCRExtractionTask(q.ID, svc, store, staticFactory(nil, ErrOCRNotConfigured), zap.NewNop())
	require.NoError(t, task.Execute(context.Background(), nil))

	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOCREditing, got.Status)
	assert.Equal(t, PlaceholderPendingTranscription, got.DraftQuestion)
	assert.Equal(t, PlaceholderPendingAnswer, got.DraftAnswer)
}

func TestOCRTaskBatchFailureWritesNothing(t *testing.T) {
	svc, q, store := newOCRTaskFixture(t, []string{"http://files/a.png"})

	client := &fakeOCRClient{
		pollErr: fmt.Errorf("%w: file a.png: unreadable", ocr.ErrBatchFailed),
	}
	task := NewOCRExtractionTask(q.ID, svc, store, staticFactory(client, nil), zap.NewNop())

	err := task.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ocr.ErrBatchFailed)

	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, got.Status)
	assert.Empty(t, got.OCRRawQuestion)
	assert.Empty(t, got.DraftQuestion)
}

func TestOCRTaskTimeoutIsDistinctFromFailure(t *testing.T) {
	svc, q, store := newOCRTaskFixture(t, []string{"http://files/a.png"})

	client := &fakeOCRClient{
		pollErr: fmt.Errorf("%w: batch batch-1 after 10m", ocr.ErrPollTimeout),
	}
	task := NewOCRExtractionTask(q.ID, svc, store, staticFactory(client, nil), zap.NewNop())

	err := task.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ocr.ErrPollTimeout)
	assert.False(t, errors.Is(err, ocr.ErrBatchFailed))
}

func TestOCRTaskMissingArchiveAbortsBatch(t *testing.T) {
	svc, q, store := newOCRTaskFixture(t, []string{"http://files/a.png"})

	client := &fakeOCRClient{
		results: []ocr.FileResult{
			{FileName: "001-a.png", State: ocr.StateDone, FullZipURL: ""},
		},
	}
	task := NewOCRExtractionTask(q.ID, svc, store, staticFactory(client, nil), zap.NewNop())

	err := task.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ocr.ErrBatchFailed)

	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OCRRawQuestion)
}
