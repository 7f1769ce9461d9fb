package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/qbank-labs/question-engine/pkg/apperrors"
)

// SlotCount is the fixed number of rewrite variants tracked per question.
const SlotCount = 5

// ============================================================================
// Status Enums
// ============================================================================

// QuestionStatus represents the current phase of a question in the pipeline.
type QuestionStatus string

const (
	StatusNew               QuestionStatus = "NEW"
	StatusOCREditing        QuestionStatus = "OCR_EDITING"
	StatusOCRReviewing      QuestionStatus = "OCR_REVIEWING"
	StatusOCRApproved       QuestionStatus = "OCR_APPROVED"
	StatusRewriteGenerating QuestionStatus = "REWRITE_GENERATING"
	StatusRewriteEditing    QuestionStatus = "REWRITE_EDITING"
	StatusRewriteReviewing  QuestionStatus = "REWRITE_REVIEWING"
	StatusDone              QuestionStatus = "DONE"
	StatusArchived          QuestionStatus = "ARCHIVED"
)

// ValidQuestionStatuses contains all valid question status values.
var ValidQuestionStatuses = []QuestionStatus{
	StatusNew,
	StatusOCREditing,
	StatusOCRReviewing,
	StatusOCRApproved,
	StatusRewriteGenerating,
	StatusRewriteEditing,
	StatusRewriteReviewing,
	StatusDone,
	StatusArchived,
}

// IsValidQuestionStatus checks if the given status is valid.
func IsValidQuestionStatus(s QuestionStatus) bool {
	for _, v := range ValidQuestionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is a terminal pipeline state.
func (s QuestionStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusArchived
}

// ReviewStatus represents the outcome of a human review.
type ReviewStatus string

const (
	ReviewPending          ReviewStatus = "PENDING"
	ReviewApproved         ReviewStatus = "APPROVED"
	ReviewChangesRequested ReviewStatus = "CHANGES_REQUESTED"
)

// IsValidReviewStatus checks if the given review status is valid.
func IsValidReviewStatus(s ReviewStatus) bool {
	return s == ReviewPending || s == ReviewApproved || s == ReviewChangesRequested
}

// ============================================================================
// Rewrite Slot
// ============================================================================

// RewriteSlot is one of the five independently tracked rewrite variants owned
// by a question. Slots are uniform records addressed by integer index (1-5);
// they have no identity or lifecycle outside their parent question.
type RewriteSlot struct {
	Index         int          `json:"index"`
	DraftQuestion string       `json:"draft_question,omitempty"`
	DraftAnswer   string       `json:"draft_answer,omitempty"`
	FinalQuestion string       `json:"final_question,omitempty"`
	FinalAnswer   string       `json:"final_answer,omitempty"`
	EditComment   string       `json:"edit_comment,omitempty"`
	ReviewComment string       `json:"review_comment,omitempty"`
	ReviewStatus  ReviewStatus `json:"review_status"`
}

// HasDraft reports whether both draft fields are populated.
func (s *RewriteSlot) HasDraft() bool {
	return s.DraftQuestion != "" && s.DraftAnswer != ""
}

// IsComplete reports whether both final fields are populated.
func (s *RewriteSlot) IsComplete() bool {
	return s.FinalQuestion != "" && s.FinalAnswer != ""
}

// ============================================================================
// Question
// ============================================================================

// Question is the unit of work flowing through the two-phase pipeline:
// OCR transcription of source images, then generation and review of five
// rewrite variants.
type Question struct {
	ID           uuid.UUID `json:"id"`
	Subject      string    `json:"subject,omitempty"`
	Grade        string    `json:"grade,omitempty"`
	QuestionType string    `json:"question_type,omitempty"`
	Source       string    `json:"source,omitempty"`
	Tags         []string  `json:"tags,omitempty"`

	// OriginalImages holds storage locators of the source images.
	OriginalImages []string `json:"original_images,omitempty"`

	Status QuestionStatus `json:"status"`

	// OCR raw fields are written exactly once by the OCR orchestrator and
	// never edited afterwards. They are kept as historical reference.
	OCRRawQuestion string `json:"ocr_raw_question,omitempty"`
	OCRRawAnswer   string `json:"ocr_raw_answer,omitempty"`

	// Draft fields are the human-editable working copy, seeded from raw.
	DraftQuestion string `json:"draft_question,omitempty"`
	DraftAnswer   string `json:"draft_answer,omitempty"`

	// Final fields hold the canonical single-line form produced by the
	// text normalizer at submission.
	FinalQuestion string `json:"final_question,omitempty"`
	FinalAnswer   string `json:"final_answer,omitempty"`

	OCRReviewStatus  ReviewStatus `json:"ocr_review_status"`
	OCRReviewComment string       `json:"ocr_review_comment,omitempty"`

	OCRProgress     int `json:"ocr_progress"`     // 0, 50 or 100
	RewriteProgress int `json:"rewrite_progress"` // 20 per completed slot, capped at 100

	Slots [SlotCount]RewriteSlot `json:"slots"`

	OCREditorID       *uuid.UUID `json:"ocr_editor_id,omitempty"`
	OCRReviewerID     *uuid.UUID `json:"ocr_reviewer_id,omitempty"`
	RewriteEditorID   *uuid.UUID `json:"rewrite_editor_id,omitempty"`
	RewriteReviewerID *uuid.UUID `json:"rewrite_reviewer_id,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	OCRCompletedAt     *time.Time `json:"ocr_completed_at,omitempty"`
	RewriteCompletedAt *time.Time `json:"rewrite_completed_at,omitempty"`
}

// NewQuestion creates a question in the NEW state with initialized slots.
func NewQuestion() *Question {
	q := &Question{
		ID:              uuid.New(),
		Status:          StatusNew,
		OCRReviewStatus: ReviewPending,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	for i := range q.Slots {
		q.Slots[i].Index = i + 1
		q.Slots[i].ReviewStatus = ReviewPending
	}
	return q
}

// Slot returns the rewrite slot for a 1-based index with bounds checking.
func (q *Question) Slot(index int) (*RewriteSlot, error) {
	if index < 1 || index > SlotCount {
		return nil, apperrors.ErrInvalidSlotIndex
	}
	return &q.Slots[index-1], nil
}

// CompletedSlots counts slots where both final fields are populated.
func (q *Question) CompletedSlots() int {
	count := 0
	for i := range q.Slots {
		if q.Slots[i].IsComplete() {
			count++
		}
	}
	return count
}

// RecomputeRewriteProgress recalculates rewrite progress from slot state.
// Each completed slot is worth 20 points, capped at 100. Progress is always
// derived, never incremented in place.
func (q *Question) RecomputeRewriteProgress() {
	progress := q.CompletedSlots() * 20
	if progress > 100 {
		progress = 100
	}
	q.RewriteProgress = progress
}

// AllSlotsApproved reports whether every slot has been approved.
func (q *Question) AllSlotsApproved() bool {
	for i := range q.Slots {
		if q.Slots[i].ReviewStatus != ReviewApproved {
			return false
		}
	}
	return true
}

// AnySlotChangesRequested reports whether any slot was sent back for changes.
func (q *Question) AnySlotChangesRequested() bool {
	for i := range q.Slots {
		if q.Slots[i].ReviewStatus == ReviewChangesRequested {
			return true
		}
	}
	return false
}
