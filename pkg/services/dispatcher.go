package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qbank-labs/question-engine/pkg/llm"
	"github.com/qbank-labs/question-engine/pkg/services/workqueue"
	"github.com/qbank-labs/question-engine/pkg/storage"
)

// Dispatcher turns workflow events into queued pipeline tasks. Handlers and
// services depend on this interface rather than on task construction.
type Dispatcher interface {
	DispatchOCR(ctx context.Context, questionID uuid.UUID) error
	DispatchRewrites(ctx context.Context, questionID uuid.UUID) error
	DispatchSlotRewrite(ctx context.Context, questionID uuid.UUID, slotIndex int) error
}

type queueDispatcher struct {
	queue       *workqueue.Queue
	workflow    WorkflowService
	store       storage.ObjectStore
	ocrFactory  OCRClientFactory
	llmFactory  GeneratorFactory
	llmSettings llm.SettingsProvider
	logger      *zap.Logger
}

// NewQueueDispatcher creates a Dispatcher backed by the in-process workqueue.
func NewQueueDispatcher(
	queue *workqueue.Queue,
	workflow WorkflowService,
	store storage.ObjectStore,
	ocrFactory OCRClientFactory,
	llmFactory GeneratorFactory,
	llmSettings llm.SettingsProvider,
	logger *zap.Logger,
) Dispatcher {
	return &queueDispatcher{
		queue:       queue,
		workflow:    workflow,
		store:       store,
		ocrFactory:  ocrFactory,
		llmFactory:  llmFactory,
		llmSettings: llmSettings,
		logger:      logger.Named("dispatcher"),
	}
}

var _ Dispatcher = (*queueDispatcher)(nil)

func (d *queueDispatcher) DispatchOCR(ctx context.Context, questionID uuid.UUID) error {
	// Validate existence up front so callers get a 404 instead of a
	// silently failing background task.
	if _, err := d.workflow.Get(ctx, questionID); err != nil {
		return err
	}
	d.queue.Enqueue(NewOCRExtractionTask(questionID, d.workflow, d.store, d.ocrFactory, d.logger))
	return nil
}

func (d *queueDispatcher) DispatchRewrites(ctx context.Context, questionID uuid.UUID) error {
	if _, err := d.workflow.Get(ctx, questionID); err != nil {
		return err
	}
	d.queue.Enqueue(NewRewriteGenerationTask(questionID, d.workflow, d.llmFactory, d.llmSettings, d.logger))
	return nil
}

func (d *queueDispatcher) DispatchSlotRewrite(ctx context.Context, questionID uuid.UUID, slotIndex int) error {
	question, err := d.workflow.Get(ctx, questionID)
	if err != nil {
		return err
	}
	if _, err := question.Slot(slotIndex); err != nil {
		return err
	}
	d.queue.Enqueue(NewRegenerateSlotTask(questionID, slotIndex, d.workflow, d.llmFactory, d.llmSettings, d.logger))
	return nil
}
