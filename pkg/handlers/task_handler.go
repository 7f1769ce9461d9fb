package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qbank-labs/question-engine/pkg/services"
	"github.com/qbank-labs/question-engine/pkg/services/workqueue"
)

// TaskHandler exposes the pipeline trigger endpoints and a queue snapshot.
// Triggers validate and enqueue; the actual work runs on the workqueue.
type TaskHandler struct {
	dispatcher services.Dispatcher
	queue      *workqueue.Queue
	logger     *zap.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(dispatcher services.Dispatcher, queue *workqueue.Queue, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{dispatcher: dispatcher, queue: queue, logger: logger}
}

// RegisterRoutes registers the task trigger routes on the given mux.
func (h *TaskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/questions/{id}/ocr", h.TriggerOCR)
	mux.HandleFunc("POST /api/questions/{id}/rewrites", h.TriggerRewrites)
	mux.HandleFunc("POST /api/questions/{id}/rewrites/{index}", h.TriggerSlotRewrite)
	mux.HandleFunc("GET /api/queue", h.QueueSnapshot)
}

// TriggerOCR enqueues the transcription batch for a question.
func (h *TaskHandler) TriggerOCR(w http.ResponseWriter, r *http.Request) {
	id, ok := h.questionID(w, r)
	if !ok {
		return
	}

	if err := h.dispatcher.DispatchOCR(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	h.logger.Info("ocr task enqueued", zap.String("question_id", id.String()))
	_ = WriteJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

// TriggerRewrites enqueues generation of all five rewrite variants.
func (h *TaskHandler) TriggerRewrites(w http.ResponseWriter, r *http.Request) {
	id, ok := h.questionID(w, r)
	if !ok {
		return
	}

	if err := h.dispatcher.DispatchRewrites(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	h.logger.Info("rewrite task enqueued", zap.String("question_id", id.String()))
	_ = WriteJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

// TriggerSlotRewrite enqueues regeneration of a single rewrite slot.
func (h *TaskHandler) TriggerSlotRewrite(w http.ResponseWriter, r *http.Request) {
	id, ok := h.questionID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_slot_index", "slot index must be an integer")
		return
	}

	if err := h.dispatcher.DispatchSlotRewrite(r.Context(), id, index); err != nil {
		writeServiceError(w, err)
		return
	}
	h.logger.Info("slot rewrite task enqueued",
		zap.String("question_id", id.String()),
		zap.Int("slot_index", index))
	_ = WriteJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

// QueueSnapshot reports the state of every queued task.
func (h *TaskHandler) QueueSnapshot(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]any{"tasks": h.queue.Tasks()})
}

func (h *TaskHandler) questionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_question_id", "question id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
