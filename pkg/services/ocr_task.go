package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qbank-labs/question-engine/pkg/apperrors"
	"github.com/qbank-labs/question-engine/pkg/models"
	"github.com/qbank-labs/question-engine/pkg/ocr"
	"github.com/qbank-labs/question-engine/pkg/repositories"
	"github.com/qbank-labs/question-engine/pkg/services/workqueue"
	"github.com/qbank-labs/question-engine/pkg/storage"
)

// documentSeparator joins per-image transcriptions into one draft.
const documentSeparator = "\n\n---\n\n"

// OCRClient is the slice of the transcription client the task needs.
// Satisfied by *ocr.Client.
type OCRClient interface {
	Submit(ctx context.Context, files []ocr.File) (ocr.Batch, error)
	Poll(ctx context.Context, batchID string) ([]ocr.FileResult, error)
	FetchDocument(ctx context.Context, zipURL string) (string, error)
}

// OCRClientFactory builds a transcription client from current settings.
// It returns ErrOCRNotConfigured when the service URL or key is unset.
type OCRClientFactory func(ctx context.Context) (OCRClient, error)

// ErrOCRNotConfigured signals the transcription service settings are absent.
// The pipeline degrades to manual entry instead of failing.
var ErrOCRNotConfigured = errors.New("transcription service is not configured")

// NewOCRClientFactory builds clients from the operator-managed settings table.
func NewOCRClientFactory(settings repositories.ConfigRepository, cfg ocr.Config, logger *zap.Logger) OCRClientFactory {
	return func(ctx context.Context) (OCRClient, error) {
		values, err := settings.Values(ctx,
			models.SettingOCRAPIURL,
			models.SettingOCRAPIKey,
			models.SettingOCRModelVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("load ocr settings: %w", err)
		}
		if values[models.SettingOCRAPIURL] == "" || values[models.SettingOCRAPIKey] == "" {
			return nil, ErrOCRNotConfigured
		}

		cfg.BaseURL = strings.TrimSuffix(values[models.SettingOCRAPIURL], "/")
		cfg.APIKey = values[models.SettingOCRAPIKey]
		cfg.ModelVersion = values[models.SettingOCRModelVersion]
		return ocr.NewClient(cfg, logger), nil
	}
}

// OCRExtractionTask runs the full transcription batch for one question:
// fetch images, submit, poll, download results, save the concatenated
// document. The batch is all-or-nothing; any per-file failure leaves the
// question untouched.
type OCRExtractionTask struct {
	workqueue.BaseTask

	questionID    uuid.UUID
	workflow      WorkflowService
	store         storage.ObjectStore
	clientFactory OCRClientFactory
	logger        *zap.Logger
}

// NewOCRExtractionTask creates a transcription task for the question.
func NewOCRExtractionTask(
	questionID uuid.UUID,
	workflow WorkflowService,
	store storage.ObjectStore,
	clientFactory OCRClientFactory,
	logger *zap.Logger,
) *OCRExtractionTask {
	return &OCRExtractionTask{
		BaseTask:      workqueue.NewBaseTask("ocr-extract "+questionID.String(), false),
		questionID:    questionID,
		workflow:      workflow,
		store:         store,
		clientFactory: clientFactory,
		logger:        logger.Named("ocr_task"),
	}
}

var _ workqueue.Task = (*OCRExtractionTask)(nil)

func (t *OCRExtractionTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	question, err := t.workflow.Get(ctx, t.questionID)
	if err != nil {
		return err
	}
	if len(question.OriginalImages) == 0 {
		return fmt.Errorf("%w: question %s", apperrors.ErrNoSourceImages, t.questionID)
	}

	client, err := t.clientFactory(ctx)
	if errors.Is(err, ErrOCRNotConfigured) {
		// Degraded mode: hand the question straight to a human editor.
		t.logger.Warn("transcription service not configured, using placeholders",
			zap.String("question_id", t.questionID.String()))
		_, err = t.workflow.SaveOCRResult(ctx, t.questionID,
			PlaceholderPendingTranscription, PlaceholderPendingAnswer)
		return err
	}
	if err != nil {
		return err
	}

	files, err := t.fetchImages(ctx, question.OriginalImages)
	if err != nil {
		return err
	}

	batch, err := client.Submit(ctx, files)
	if err != nil {
		return err
	}

	results, err := client.Poll(ctx, batch.ID)
	if err != nil {
		return err
	}

	content, err := t.assembleDocument(ctx, client, batch, results)
	if err != nil {
		return err
	}

	if _, err := t.workflow.SaveOCRResult(ctx, t.questionID, content, PlaceholderPendingAnswer); err != nil {
		return err
	}

	t.logger.Info("transcription saved",
		zap.String("question_id", t.questionID.String()),
		zap.String("batch_id", batch.ID),
		zap.Int("images", len(files)),
		zap.Int("content_len", len(content)))
	return nil
}

// fetchImages downloads every source image in parallel, preserving order.
func (t *OCRExtractionTask) fetchImages(ctx context.Context, locators []string) ([]ocr.File, error) {
	files := make([]ocr.File, len(locators))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, locator := range locators {
		i, locator := i, locator
		g.Go(func() error {
			data, err := t.store.Fetch(gctx, locator)
			if err != nil {
				return fmt.Errorf("fetch image %s: %w", locator, err)
			}
			name := path.Base(locator)
			if name == "" || name == "." || name == "/" {
				name = fmt.Sprintf("image-%d", i+1)
			}
			mu.Lock()
			files[i] = ocr.File{Name: fmt.Sprintf("%03d-%s", i+1, name), Data: data}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// assembleDocument downloads each result archive in submission order and
// joins the markdown documents. A result missing its archive or document
// aborts the whole batch.
func (t *OCRExtractionTask) assembleDocument(ctx context.Context, client OCRClient, batch ocr.Batch, results []ocr.FileResult) (string, error) {
	byName := make(map[string]ocr.FileResult, len(results))
	for _, r := range results {
		byName[r.FileName] = r
	}

	docs := make([]string, 0, len(batch.Files))
	for _, name := range batch.Files {
		result, ok := byName[name]
		if !ok || result.FullZipURL == "" {
			return "", fmt.Errorf("%w: no result archive for %s", ocr.ErrBatchFailed, name)
		}
		doc, err := client.FetchDocument(ctx, result.FullZipURL)
		if err != nil {
			return "", fmt.Errorf("fetch document for %s: %w", name, err)
		}
		docs = append(docs, strings.TrimSpace(doc))
	}
	return strings.Join(docs, documentSeparator), nil
}
