package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/qbank-labs/question-engine/pkg/apperrors"
	"github.com/qbank-labs/question-engine/pkg/database"
	"github.com/qbank-labs/question-engine/pkg/models"
)

// QuestionRepository provides data access for questions and their rewrite slots.
type QuestionRepository interface {
	// Create inserts a new question together with its five slot rows.
	Create(ctx context.Context, question *models.Question) error

	// GetByID retrieves a question with all slots loaded.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)

	// Mutate runs fn against a row-locked, freshly loaded question and
	// persists the result atomically. If fn returns an error nothing is
	// written. This is the only write path for workflow mutations, so
	// concurrent writers re-read current state instead of clobbering it.
	Mutate(ctx context.Context, id uuid.UUID, fn func(q *models.Question) error) (*models.Question, error)

	// Delete removes a question and (via cascade) its slots. Administrative.
	Delete(ctx context.Context, id uuid.UUID) error
}

type questionRepository struct {
	db *database.DB
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(db *database.DB) QuestionRepository {
	return &questionRepository{db: db}
}

var _ QuestionRepository = (*questionRepository)(nil)

// querier is the subset of pgx operations shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const questionColumns = `
	id, subject, grade, question_type, source, tags, original_images, status,
	ocr_raw_question, ocr_raw_answer, draft_question, draft_answer,
	final_question, final_answer, ocr_review_status, ocr_review_comment,
	ocr_progress, rewrite_progress,
	ocr_editor_id, ocr_reviewer_id, rewrite_editor_id, rewrite_reviewer_id,
	created_at, updated_at, ocr_completed_at, rewrite_completed_at`

func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	now := time.Now()
	if question.ID == uuid.Nil {
		question.ID = uuid.New()
	}
	if question.CreatedAt.IsZero() {
		question.CreatedAt = now
	}
	question.UpdatedAt = now
	if question.Status == "" {
		question.Status = models.StatusNew
	}
	if question.OCRReviewStatus == "" {
		question.OCRReviewStatus = models.ReviewPending
	}
	for i := range question.Slots {
		question.Slots[i].Index = i + 1
		if question.Slots[i].ReviewStatus == "" {
			question.Slots[i].ReviewStatus = models.ReviewPending
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO questions (` + questionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	_, err = tx.Exec(ctx, query,
		question.ID, question.Subject, question.Grade, question.QuestionType,
		question.Source, question.Tags, question.OriginalImages, string(question.Status),
		question.OCRRawQuestion, question.OCRRawAnswer,
		question.DraftQuestion, question.DraftAnswer,
		question.FinalQuestion, question.FinalAnswer,
		string(question.OCRReviewStatus), question.OCRReviewComment,
		question.OCRProgress, question.RewriteProgress,
		question.OCREditorID, question.OCRReviewerID,
		question.RewriteEditorID, question.RewriteReviewerID,
		question.CreatedAt, question.UpdatedAt,
		question.OCRCompletedAt, question.RewriteCompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	if err := upsertSlots(ctx, tx, question); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *questionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return loadQuestion(ctx, r.db, id, false)
}

func (r *questionRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(q *models.Question) error) (*models.Question, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	question, err := loadQuestion(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	if err := fn(question); err != nil {
		return nil, err
	}

	question.UpdatedAt = time.Now()
	if err := saveQuestion(ctx, tx, question); err != nil {
		return nil, err
	}
	if err := upsertSlots(ctx, tx, question); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return question, nil
}

func (r *questionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func loadQuestion(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	question, err := scanQuestion(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT slot_index, draft_question, draft_answer, final_question,
		       final_answer, edit_comment, review_comment, review_status
		FROM question_rewrites
		WHERE question_id = $1
		ORDER BY slot_index`, id)
	if err != nil {
		return nil, fmt.Errorf("load rewrite slots: %w", err)
	}
	defer rows.Close()

	for i := range question.Slots {
		question.Slots[i].Index = i + 1
		question.Slots[i].ReviewStatus = models.ReviewPending
	}
	for rows.Next() {
		var slot models.RewriteSlot
		var reviewStatus string
		if err := rows.Scan(&slot.Index, &slot.DraftQuestion, &slot.DraftAnswer,
			&slot.FinalQuestion, &slot.FinalAnswer, &slot.EditComment,
			&slot.ReviewComment, &reviewStatus); err != nil {
			return nil, fmt.Errorf("scan rewrite slot: %w", err)
		}
		slot.ReviewStatus = models.ReviewStatus(reviewStatus)
		if slot.Index >= 1 && slot.Index <= models.SlotCount {
			question.Slots[slot.Index-1] = slot
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rewrite slots: %w", err)
	}

	return question, nil
}

func saveQuestion(ctx context.Context, q querier, question *models.Question) error {
	query := `
		UPDATE questions SET
			subject = $2, grade = $3, question_type = $4, source = $5, tags = $6,
			original_images = $7, status = $8,
			ocr_raw_question = $9, ocr_raw_answer = $10,
			draft_question = $11, draft_answer = $12,
			final_question = $13, final_answer = $14,
			ocr_review_status = $15, ocr_review_comment = $16,
			ocr_progress = $17, rewrite_progress = $18,
			ocr_editor_id = $19, ocr_reviewer_id = $20,
			rewrite_editor_id = $21, rewrite_reviewer_id = $22,
			updated_at = $23, ocr_completed_at = $24, rewrite_completed_at = $25
		WHERE id = $1`

	tag, err := q.Exec(ctx, query,
		question.ID, question.Subject, question.Grade, question.QuestionType,
		question.Source, question.Tags, question.OriginalImages, string(question.Status),
		question.OCRRawQuestion, question.OCRRawAnswer,
		question.DraftQuestion, question.DraftAnswer,
		question.FinalQuestion, question.FinalAnswer,
		string(question.OCRReviewStatus), question.OCRReviewComment,
		question.OCRProgress, question.RewriteProgress,
		question.OCREditorID, question.OCRReviewerID,
		question.RewriteEditorID, question.RewriteReviewerID,
		question.UpdatedAt, question.OCRCompletedAt, question.RewriteCompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func upsertSlots(ctx context.Context, q querier, question *models.Question) error {
	query := `
		INSERT INTO question_rewrites (
			question_id, slot_index, draft_question, draft_answer,
			final_question, final_answer, edit_comment, review_comment, review_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (question_id, slot_index) DO UPDATE SET
			draft_question = EXCLUDED.draft_question,
			draft_answer = EXCLUDED.draft_answer,
			final_question = EXCLUDED.final_question,
			final_answer = EXCLUDED.final_answer,
			edit_comment = EXCLUDED.edit_comment,
			review_comment = EXCLUDED.review_comment,
			review_status = EXCLUDED.review_status`

	batch := &pgx.Batch{}
	for i := range question.Slots {
		slot := &question.Slots[i]
		batch.Queue(query,
			question.ID, slot.Index, slot.DraftQuestion, slot.DraftAnswer,
			slot.FinalQuestion, slot.FinalAnswer, slot.EditComment,
			slot.ReviewComment, string(slot.ReviewStatus),
		)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for range question.Slots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert rewrite slot: %w", err)
		}
	}
	return nil
}

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var q models.Question
	var status, reviewStatus string

	err := row.Scan(
		&q.ID, &q.Subject, &q.Grade, &q.QuestionType, &q.Source, &q.Tags,
		&q.OriginalImages, &status,
		&q.OCRRawQuestion, &q.OCRRawAnswer,
		&q.DraftQuestion, &q.DraftAnswer,
		&q.FinalQuestion, &q.FinalAnswer,
		&reviewStatus, &q.OCRReviewComment,
		&q.OCRProgress, &q.RewriteProgress,
		&q.OCREditorID, &q.OCRReviewerID, &q.RewriteEditorID, &q.RewriteReviewerID,
		&q.CreatedAt, &q.UpdatedAt, &q.OCRCompletedAt, &q.RewriteCompletedAt,
	)
	if err != nil {
		return nil, err
	}

	q.Status = models.QuestionStatus(status)
	q.OCRReviewStatus = models.ReviewStatus(reviewStatus)
	return &q, nil
}
