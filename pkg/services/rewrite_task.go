package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qbank-labs/question-engine/pkg/llm"
	"github.com/qbank-labs/question-engine/pkg/models"
	"github.com/qbank-labs/question-engine/pkg/prompts"
	"github.com/qbank-labs/question-engine/pkg/services/workqueue"
)

// GeneratorFactory builds a completion generator from current settings.
// Satisfied by *llm.Factory.
type GeneratorFactory interface {
	Build(ctx context.Context) (llm.Generator, llm.Params, error)
}

// RewriteGenerationTask generates all five rewrite variants for a question
// whose transcription has been approved. Generation runs the versions in
// parallel; persistence is serialized by the repository's row lock. A slot
// always ends up with content, falling back to placeholders on provider or
// parse failures so editors can take over.
type RewriteGenerationTask struct {
	workqueue.BaseTask

	questionID uuid.UUID
	workflow   WorkflowService
	factory    GeneratorFactory
	settings   llm.SettingsProvider
	logger     *zap.Logger
}

// NewRewriteGenerationTask creates a batch generation task for the question.
func NewRewriteGenerationTask(
	questionID uuid.UUID,
	workflow WorkflowService,
	factory GeneratorFactory,
	settings llm.SettingsProvider,
	logger *zap.Logger,
) *RewriteGenerationTask {
	return &RewriteGenerationTask{
		BaseTask:   workqueue.NewBaseTask("rewrite-generate "+questionID.String(), true),
		questionID: questionID,
		workflow:   workflow,
		factory:    factory,
		settings:   settings,
		logger:     logger.Named("rewrite_task"),
	}
}

var _ workqueue.Task = (*RewriteGenerationTask)(nil)

func (t *RewriteGenerationTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	question, err := t.workflow.BeginRewriteGeneration(ctx, t.questionID)
	if err != nil {
		return err
	}

	gen, params, template := t.buildGenerator(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for version := 1; version <= models.SlotCount; version++ {
		version := version
		g.Go(func() error {
			draftQ, draftA := generateVariant(gctx, gen, params, template,
				question.FinalQuestion, question.FinalAnswer, version, t.logger)
			_, err := t.workflow.SaveRewriteDraft(gctx, t.questionID, version, draftQ, draftA)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if _, err := t.workflow.FinishRewriteGeneration(ctx, t.questionID); err != nil {
		return err
	}

	t.logger.Info("rewrite variants generated",
		zap.String("question_id", t.questionID.String()))
	return nil
}

// buildGenerator resolves the provider and prompt template. A missing
// provider configuration yields a nil generator; variants then fall back to
// failure placeholders rather than blocking the pipeline.
func (t *RewriteGenerationTask) buildGenerator(ctx context.Context) (llm.Generator, llm.Params, string) {
	template := ""
	if values, err := t.settings.Values(ctx, models.SettingLLMRewritePrompt); err == nil {
		template = values[models.SettingLLMRewritePrompt]
	}

	gen, params, err := t.factory.Build(ctx)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			t.logger.Warn("llm provider not configured, variants get placeholders",
				zap.String("question_id", t.questionID.String()))
		} else {
			t.logger.Error("building llm generator failed",
				zap.String("question_id", t.questionID.String()),
				zap.Error(err))
		}
		return nil, llm.Params{}, template
	}
	return gen, params, template
}

// RegenerateSlotTask regenerates a single rewrite slot without touching the
// other four or the question status.
type RegenerateSlotTask struct {
	workqueue.BaseTask

	questionID uuid.UUID
	slotIndex  int
	workflow   WorkflowService
	factory    GeneratorFactory
	settings   llm.SettingsProvider
	logger     *zap.Logger
}

// NewRegenerateSlotTask creates a single-slot regeneration task.
func NewRegenerateSlotTask(
	questionID uuid.UUID,
	slotIndex int,
	workflow WorkflowService,
	factory GeneratorFactory,
	settings llm.SettingsProvider,
	logger *zap.Logger,
) *RegenerateSlotTask {
	return &RegenerateSlotTask{
		BaseTask:   workqueue.NewBaseTask(fmt.Sprintf("rewrite-slot %s #%d", questionID, slotIndex), true),
		questionID: questionID,
		slotIndex:  slotIndex,
		workflow:   workflow,
		factory:    factory,
		settings:   settings,
		logger:     logger.Named("rewrite_task"),
	}
}

var _ workqueue.Task = (*RegenerateSlotTask)(nil)

func (t *RegenerateSlotTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	question, err := t.workflow.Get(ctx, t.questionID)
	if err != nil {
		return err
	}
	if _, err := question.Slot(t.slotIndex); err != nil {
		return err
	}
	if question.FinalQuestion == "" || question.FinalAnswer == "" {
		return fmt.Errorf("question %s has no approved transcription", t.questionID)
	}

	template := ""
	if values, err := t.settings.Values(ctx, models.SettingLLMRewritePrompt); err == nil {
		template = values[models.SettingLLMRewritePrompt]
	}
	gen, params, err := t.factory.Build(ctx)
	if err != nil && !errors.Is(err, llm.ErrNotConfigured) {
		return err
	}

	draftQ, draftA := generateVariant(ctx, gen, params, template,
		question.FinalQuestion, question.FinalAnswer, t.slotIndex, t.logger)
	_, err = t.workflow.SaveRewriteDraft(ctx, t.questionID, t.slotIndex, draftQ, draftA)
	return err
}

// generateVariant produces draft content for one slot. It never returns
// empty strings: provider failures and unparseable responses degrade to
// placeholder text that an editor replaces.
func generateVariant(
	ctx context.Context,
	gen llm.Generator,
	params llm.Params,
	template, question, answer string,
	version int,
	logger *zap.Logger,
) (draftQuestion, draftAnswer string) {
	if gen == nil {
		return PlaceholderGenerationFailed, PlaceholderGenerationFailed
	}

	prompt := prompts.BuildRewritePrompt(template, question, answer, version)
	response, err := gen.Generate(ctx, prompt, params)
	if err != nil {
		logger.Error("variant generation failed",
			zap.Int("version", version),
			zap.Error(err))
		return PlaceholderGenerationFailed, PlaceholderGenerationFailed
	}

	parsedQ, parsedA, ok := prompts.ParseRewriteResponse(response)
	if !ok {
		logger.Warn("variant response did not match expected format",
			zap.Int("version", version),
			zap.Int("response_len", len(response)))
		return RawResponseMarker + response, PlaceholderExtractionNote
	}
	if parsedA == "" {
		parsedA = PlaceholderExtractionNote
	}
	return parsedQ, parsedA
}
