package models

import (
	"testing"

	"github.com/qbank-labs/question-engine/pkg/apperrors"
)

func TestNewQuestionInitializesSlots(t *testing.T) {
	q := NewQuestion()

	if q.Status != StatusNew {
		t.Errorf("status = %s, want %s", q.Status, StatusNew)
	}
	if len(q.Slots) != SlotCount {
		t.Fatalf("slot count = %d, want %d", len(q.Slots), SlotCount)
	}
	for i, slot := range q.Slots {
		if slot.Index != i+1 {
			t.Errorf("slot %d index = %d, want %d", i, slot.Index, i+1)
		}
		if slot.ReviewStatus != ReviewPending {
			t.Errorf("slot %d review status = %s, want %s", i, slot.ReviewStatus, ReviewPending)
		}
	}
}

func TestSlotBoundsChecking(t *testing.T) {
	q := NewQuestion()

	for _, index := range []int{-1, 0, 6, 100} {
		if _, err := q.Slot(index); err != apperrors.ErrInvalidSlotIndex {
			t.Errorf("Slot(%d) error = %v, want ErrInvalidSlotIndex", index, err)
		}
	}
	for index := 1; index <= SlotCount; index++ {
		slot, err := q.Slot(index)
		if err != nil {
			t.Fatalf("Slot(%d) error = %v", index, err)
		}
		if slot.Index != index {
			t.Errorf("Slot(%d).Index = %d", index, slot.Index)
		}
	}
}

func TestRecomputeRewriteProgress(t *testing.T) {
	tests := []struct {
		completed int
		want      int
	}{
		{0, 0},
		{1, 20},
		{2, 40},
		{3, 60},
		{4, 80},
		{5, 100},
	}

	for _, tt := range tests {
		q := NewQuestion()
		for i := 0; i < tt.completed; i++ {
			q.Slots[i].FinalQuestion = "q"
			q.Slots[i].FinalAnswer = "a"
		}
		q.RecomputeRewriteProgress()
		if q.RewriteProgress != tt.want {
			t.Errorf("progress with %d completed slots = %d, want %d",
				tt.completed, q.RewriteProgress, tt.want)
		}
	}
}

func TestRecomputeRewriteProgressIsDerivedNotIncremental(t *testing.T) {
	q := NewQuestion()
	q.Slots[0].FinalQuestion = "q"
	q.Slots[0].FinalAnswer = "a"
	q.RewriteProgress = 80 // stale value from an earlier state

	q.RecomputeRewriteProgress()
	if q.RewriteProgress != 20 {
		t.Errorf("progress = %d, want 20 (recomputed from slot state)", q.RewriteProgress)
	}
}

func TestSlotApprovalScans(t *testing.T) {
	q := NewQuestion()
	if q.AllSlotsApproved() {
		t.Error("fresh question should not report all slots approved")
	}

	for i := range q.Slots {
		q.Slots[i].ReviewStatus = ReviewApproved
	}
	if !q.AllSlotsApproved() {
		t.Error("all approved slots should report approved")
	}
	if q.AnySlotChangesRequested() {
		t.Error("no slot requested changes")
	}

	q.Slots[3].ReviewStatus = ReviewChangesRequested
	if q.AllSlotsApproved() {
		t.Error("one rejection should break approval")
	}
	if !q.AnySlotChangesRequested() {
		t.Error("rejection should be detected")
	}
}

func TestStatusValidity(t *testing.T) {
	for _, s := range ValidQuestionStatuses {
		if !IsValidQuestionStatus(s) {
			t.Errorf("%s should be valid", s)
		}
	}
	if IsValidQuestionStatus("BOGUS") {
		t.Error("BOGUS should be invalid")
	}

	if !StatusDone.IsTerminal() || !StatusArchived.IsTerminal() {
		t.Error("DONE and ARCHIVED are terminal")
	}
	if StatusRewriteReviewing.IsTerminal() {
		t.Error("REWRITE_REVIEWING is not terminal")
	}
}
