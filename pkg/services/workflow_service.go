package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qbank-labs/question-engine/pkg/apperrors"
	"github.com/qbank-labs/question-engine/pkg/markdown"
	"github.com/qbank-labs/question-engine/pkg/models"
	"github.com/qbank-labs/question-engine/pkg/repositories"
)

// Placeholder texts written when automated steps cannot produce content.
// Drafts are never left empty; humans complete them during editing.
const (
	PlaceholderPendingTranscription = "[transcription unavailable, enter the question manually]"
	PlaceholderPendingAnswer        = "[answer pending manual completion]"
	RawResponseMarker               = "[unparsed model response, extract manually]\n\n"
	PlaceholderExtractionNote       = "[extract the answer from the question text above]"
	PlaceholderGenerationFailed     = "[generation failed, write this variant manually]"
)

// CreateQuestionInput carries metadata and source images for a new question.
type CreateQuestionInput struct {
	Subject      string
	Grade        string
	QuestionType string
	Source       string
	Tags         []string
	Images       []string
}

// MetadataInput carries an administrative metadata update. Nil fields are
// left untouched.
type MetadataInput struct {
	Subject      *string
	Grade        *string
	QuestionType *string
	Source       *string
	Tags         []string
}

// ReviewInput carries a review decision. FinalQuestion and FinalAnswer let
// the reviewer correct the canonical text while approving.
type ReviewInput struct {
	Status        models.ReviewStatus
	Comment       string
	FinalQuestion string
	FinalAnswer   string
}

// AssignUsersInput sets workflow participants. Nil fields are left untouched.
type AssignUsersInput struct {
	OCREditorID       *uuid.UUID
	OCRReviewerID     *uuid.UUID
	RewriteEditorID   *uuid.UUID
	RewriteReviewerID *uuid.UUID
}

// RewriteScheduler enqueues rewrite generation for a question whose
// transcription has been approved. Satisfied by Dispatcher.
type RewriteScheduler interface {
	DispatchRewrites(ctx context.Context, questionID uuid.UUID) error
}

// WorkflowService implements the question state machine. Every mutation runs
// as a row-locked read-modify-write, so concurrent submissions and reviews
// always see current state and invalid transitions reject without writing.
type WorkflowService interface {
	Create(ctx context.Context, input CreateQuestionInput) (*models.Question, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Question, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, input MetadataInput) (*models.Question, error)
	Archive(ctx context.Context, id uuid.UUID) (*models.Question, error)
	AssignUsers(ctx context.Context, id uuid.UUID, input AssignUsersInput) (*models.Question, error)

	// Transcription phase.
	SaveOCRResult(ctx context.Context, id uuid.UUID, rawQuestion, rawAnswer string) (*models.Question, error)
	UpdateOCRDraft(ctx context.Context, id uuid.UUID, question, answer string) (*models.Question, error)
	SubmitOCREdit(ctx context.Context, id uuid.UUID) (*models.Question, error)
	SubmitOCRReview(ctx context.Context, id uuid.UUID, input ReviewInput) (*models.Question, error)

	// Rewrite phase. Begin/SaveDraft/Finish are driven by the generation
	// tasks; the rest by editors and reviewers.
	BeginRewriteGeneration(ctx context.Context, id uuid.UUID) (*models.Question, error)
	SaveRewriteDraft(ctx context.Context, id uuid.UUID, index int, question, answer string) (*models.Question, error)
	FinishRewriteGeneration(ctx context.Context, id uuid.UUID) (*models.Question, error)
	UpdateRewriteDraft(ctx context.Context, id uuid.UUID, index int, question, answer, editComment string) (*models.Question, error)
	SubmitRewriteEdit(ctx context.Context, id uuid.UUID, index int) (*models.Question, error)
	SubmitAllRewriteEdits(ctx context.Context, id uuid.UUID) (*models.Question, error)
	SubmitRewriteReview(ctx context.Context, id uuid.UUID, index int, input ReviewInput) (*models.Question, error)

	// SetRewriteScheduler wires the scheduler used to enqueue rewrite
	// generation after an approved transcription review. Set after
	// construction because the dispatcher also depends on this service.
	SetRewriteScheduler(scheduler RewriteScheduler)
}

type workflowService struct {
	questions  repositories.QuestionRepository
	assignment AssignmentPolicy
	scheduler  RewriteScheduler
	logger     *zap.Logger
}

// NewWorkflowService creates the question workflow service.
func NewWorkflowService(
	questions repositories.QuestionRepository,
	assignment AssignmentPolicy,
	logger *zap.Logger,
) WorkflowService {
	return &workflowService{
		questions:  questions,
		assignment: assignment,
		logger:     logger.Named("workflow"),
	}
}

var _ WorkflowService = (*workflowService)(nil)

func (s *workflowService) SetRewriteScheduler(scheduler RewriteScheduler) {
	s.scheduler = scheduler
}

func (s *workflowService) Create(ctx context.Context, input CreateQuestionInput) (*models.Question, error) {
	question := models.NewQuestion()
	question.Subject = input.Subject
	question.Grade = input.Grade
	question.QuestionType = input.QuestionType
	question.Source = input.Source
	question.Tags = input.Tags
	question.OriginalImages = input.Images

	if err := s.questions.Create(ctx, question); err != nil {
		return nil, err
	}
	s.logger.Info("question created",
		zap.String("question_id", question.ID.String()),
		zap.Int("images", len(question.OriginalImages)))
	return question, nil
}

func (s *workflowService) Get(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return s.questions.GetByID(ctx, id)
}

func (s *workflowService) UpdateMetadata(ctx context.Context, id uuid.UUID, input MetadataInput) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		if q.Status == models.StatusArchived {
			return fmt.Errorf("%w: question is archived", apperrors.ErrConflict)
		}
		if input.Subject != nil {
			q.Subject = *input.Subject
		}
		if input.Grade != nil {
			q.Grade = *input.Grade
		}
		if input.QuestionType != nil {
			q.QuestionType = *input.QuestionType
		}
		if input.Source != nil {
			q.Source = *input.Source
		}
		if input.Tags != nil {
			q.Tags = input.Tags
		}
		return nil
	})
}

func (s *workflowService) Archive(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		q.Status = models.StatusArchived
		return nil
	})
}

func (s *workflowService) AssignUsers(ctx context.Context, id uuid.UUID, input AssignUsersInput) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		if input.OCREditorID != nil {
			q.OCREditorID = input.OCREditorID
		}
		if input.OCRReviewerID != nil {
			q.OCRReviewerID = input.OCRReviewerID
		}
		if input.RewriteEditorID != nil {
			q.RewriteEditorID = input.RewriteEditorID
		}
		if input.RewriteReviewerID != nil {
			q.RewriteReviewerID = input.RewriteReviewerID
		}
		return nil
	})
}

// ============================================================================
// Transcription phase
// ============================================================================

func (s *workflowService) SaveOCRResult(ctx context.Context, id uuid.UUID, rawQuestion, rawAnswer string) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		if q.Status != models.StatusNew {
			return fmt.Errorf("%w: transcription already saved in status %s", apperrors.ErrConflict, q.Status)
		}
		// Raw fields are written exactly once; drafts seed from them.
		q.OCRRawQuestion = rawQuestion
		q.OCRRawAnswer = rawAnswer
		q.DraftQuestion = rawQuestion
		q.DraftAnswer = rawAnswer
		q.Status = models.StatusOCREditing
		return nil
	})
}

func (s *workflowService) UpdateOCRDraft(ctx context.Context, id uuid.UUID, question, answer string) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		switch q.Status {
		case models.StatusNew:
			// Manual entry without a transcription run.
			q.Status = models.StatusOCREditing
		case models.StatusOCREditing:
		default:
			return fmt.Errorf("%w: cannot edit transcription in status %s", apperrors.ErrConflict, q.Status)
		}
		q.DraftQuestion = question
		q.DraftAnswer = answer
		return nil
	})
}

func (s *workflowService) SubmitOCREdit(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		if q.Status != models.StatusOCREditing {
			return fmt.Errorf("%w: cannot submit transcription in status %s", apperrors.ErrConflict, q.Status)
		}
		if q.DraftQuestion == "" {
			return fmt.Errorf("%w: draft question is empty", apperrors.ErrContentIncomplete)
		}

		q.FinalQuestion = markdown.Normalize(q.DraftQuestion)
		q.FinalAnswer = markdown.Normalize(q.DraftAnswer)
		q.Status = models.StatusOCRReviewing
		q.OCRReviewStatus = models.ReviewPending
		q.OCRProgress = 50

		s.autoAssign(ctx, q, models.RoleOCRReviewer, &q.OCRReviewerID)
		return nil
	})
}

func (s *workflowService) SubmitOCRReview(ctx context.Context, id uuid.UUID, input ReviewInput) (*models.Question, error) {
	if input.Status != models.ReviewApproved && input.Status != models.ReviewChangesRequested {
		return nil, fmt.Errorf("%w: invalid review decision %q", apperrors.ErrConflict, input.Status)
	}

	question, err := s.questions.Mutate(ctx, id, func(q *models.Question) error {
		if q.Status != models.StatusOCRReviewing {
			return fmt.Errorf("%w: cannot review transcription in status %s", apperrors.ErrConflict, q.Status)
		}

		q.OCRReviewStatus = input.Status
		q.OCRReviewComment = input.Comment

		if input.Status == models.ReviewChangesRequested {
			q.Status = models.StatusOCREditing
			return nil
		}

		// Reviewers may correct the canonical text while approving.
		if input.FinalQuestion != "" {
			q.FinalQuestion = markdown.Normalize(input.FinalQuestion)
		}
		if input.FinalAnswer != "" {
			q.FinalAnswer = markdown.Normalize(input.FinalAnswer)
		}

		q.Status = models.StatusOCRApproved
		q.OCRProgress = 100
		if q.OCRCompletedAt == nil {
			now := time.Now()
			q.OCRCompletedAt = &now
		}

		if s.autoAssign(ctx, q, models.RoleRewriteEditor, &q.RewriteEditorID) {
			q.Status = models.StatusRewriteEditing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Approval kicks off variant generation. The review is already committed,
	// so a scheduling failure is logged and the question stays editable.
	if input.Status == models.ReviewApproved && s.scheduler != nil {
		if err := s.scheduler.DispatchRewrites(ctx, question.ID); err != nil {
			s.logger.Error("failed to schedule rewrite generation",
				zap.String("question_id", question.ID.String()),
				zap.Error(err))
		}
	}
	return question, nil
}

// ============================================================================
// Rewrite phase
// ============================================================================

func (s *workflowService) BeginRewriteGeneration(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		switch q.Status {
		case models.StatusOCRApproved, models.StatusRewriteEditing:
		default:
			return fmt.Errorf("%w: cannot generate rewrites in status %s", apperrors.ErrConflict, q.Status)
		}
		if q.FinalQuestion == "" || q.FinalAnswer == "" {
			return apperrors.ErrMissingCanonicalText
		}
		q.Status = models.StatusRewriteGenerating
		return nil
	})
}

func (s *workflowService) SaveRewriteDraft(ctx context.Context, id uuid.UUID, index int, question, answer string) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		slot, err := q.Slot(index)
		if err != nil {
			return err
		}
		slot.DraftQuestion = question
		slot.DraftAnswer = answer
		slot.ReviewStatus = models.ReviewPending
		return nil
	})
}

func (s *workflowService) FinishRewriteGeneration(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		if q.Status != models.StatusRewriteGenerating {
			return fmt.Errorf("%w: generation not in progress, status %s", apperrors.ErrConflict, q.Status)
		}
		q.Status = models.StatusRewriteEditing
		s.autoAssign(ctx, q, models.RoleRewriteEditor, &q.RewriteEditorID)
		return nil
	})
}

func (s *workflowService) UpdateRewriteDraft(ctx context.Context, id uuid.UUID, index int, question, answer, editComment string) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		slot, err := q.Slot(index)
		if err != nil {
			return err
		}
		switch q.Status {
		case models.StatusRewriteGenerating:
			// First manual edit takes the question out of generation.
			q.Status = models.StatusRewriteEditing
		case models.StatusRewriteEditing:
		default:
			return fmt.Errorf("%w: cannot edit rewrites in status %s", apperrors.ErrConflict, q.Status)
		}
		slot.DraftQuestion = question
		slot.DraftAnswer = answer
		slot.EditComment = editComment
		return nil
	})
}

func (s *workflowService) SubmitRewriteEdit(ctx context.Context, id uuid.UUID, index int) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		slot, err := q.Slot(index)
		if err != nil {
			return err
		}
		switch q.Status {
		case models.StatusRewriteEditing, models.StatusRewriteReviewing:
			// Remaining slots may be submitted after review has started.
		default:
			return fmt.Errorf("%w: cannot submit rewrite in status %s", apperrors.ErrConflict, q.Status)
		}
		if !slot.HasDraft() {
			return fmt.Errorf("%w: slot %d draft is incomplete", apperrors.ErrContentIncomplete, index)
		}

		slot.FinalQuestion = markdown.Normalize(slot.DraftQuestion)
		slot.FinalAnswer = markdown.Normalize(slot.DraftAnswer)
		slot.ReviewStatus = models.ReviewPending
		q.RecomputeRewriteProgress()

		// The reviewer is assigned on the first submit that finds one; the
		// question moves to review at that moment, not when all slots are in.
		if q.RewriteReviewerID == nil &&
			s.autoAssign(ctx, q, models.RoleRewriteReviewer, &q.RewriteReviewerID) {
			q.Status = models.StatusRewriteReviewing
		}
		return nil
	})
}

func (s *workflowService) SubmitAllRewriteEdits(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		if q.Status != models.StatusRewriteEditing {
			return fmt.Errorf("%w: cannot submit rewrites in status %s", apperrors.ErrConflict, q.Status)
		}
		for i := range q.Slots {
			if !q.Slots[i].HasDraft() {
				return fmt.Errorf("%w: slot %d draft is incomplete", apperrors.ErrContentIncomplete, i+1)
			}
		}

		// Re-submitting puts every slot back under review, including slots
		// already approved in an earlier round.
		for i := range q.Slots {
			slot := &q.Slots[i]
			slot.FinalQuestion = markdown.Normalize(slot.DraftQuestion)
			slot.FinalAnswer = markdown.Normalize(slot.DraftAnswer)
			slot.ReviewStatus = models.ReviewPending
			slot.ReviewComment = ""
		}
		q.RecomputeRewriteProgress()
		q.Status = models.StatusRewriteReviewing
		s.autoAssign(ctx, q, models.RoleRewriteReviewer, &q.RewriteReviewerID)
		return nil
	})
}

func (s *workflowService) SubmitRewriteReview(ctx context.Context, id uuid.UUID, index int, input ReviewInput) (*models.Question, error) {
	if input.Status != models.ReviewApproved && input.Status != models.ReviewChangesRequested {
		return nil, fmt.Errorf("%w: invalid review decision %q", apperrors.ErrConflict, input.Status)
	}

	return s.questions.Mutate(ctx, id, func(q *models.Question) error {
		slot, err := q.Slot(index)
		if err != nil {
			return err
		}
		if q.Status != models.StatusRewriteReviewing {
			return fmt.Errorf("%w: cannot review rewrites in status %s", apperrors.ErrConflict, q.Status)
		}

		slot.ReviewStatus = input.Status
		slot.ReviewComment = input.Comment
		if input.Status == models.ReviewApproved {
			if input.FinalQuestion != "" {
				slot.FinalQuestion = markdown.Normalize(input.FinalQuestion)
			}
			if input.FinalAnswer != "" {
				slot.FinalAnswer = markdown.Normalize(input.FinalAnswer)
			}
		}

		q.RecomputeRewriteProgress()

		switch {
		case q.AnySlotChangesRequested():
			q.Status = models.StatusRewriteEditing
		case q.AllSlotsApproved():
			q.Status = models.StatusDone
			q.RewriteProgress = 100
			if q.RewriteCompletedAt == nil {
				now := time.Now()
				q.RewriteCompletedAt = &now
			}
		default:
			// Verdicts still outstanding; stay in review.
		}
		return nil
	})
}

// autoAssign fills an unassigned role via the assignment policy. Returns
// true when the role ends up assigned. Policy failures are logged, never
// fatal; the question simply proceeds unassigned.
func (s *workflowService) autoAssign(ctx context.Context, q *models.Question, role models.UserRole, target **uuid.UUID) bool {
	if *target != nil {
		return true
	}
	picked, err := s.assignment.Pick(ctx, role)
	if err != nil {
		s.logger.Warn("no assignee available",
			zap.String("question_id", q.ID.String()),
			zap.String("role", string(role)),
			zap.Error(err))
		return false
	}
	*target = picked
	return true
}
