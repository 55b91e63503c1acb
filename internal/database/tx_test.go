package database

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestWithUndo_RollsBackNewestFirst(t *testing.T) {
	var undone []int
	failure := errors.New("link write failed")

	err := WithUndo(context.Background(), func(ctx context.Context) error {
		RecordUndo(ctx, func() { undone = append(undone, 1) })
		RecordUndo(ctx, func() { undone = append(undone, 2) })
		return failure
	})

	if !errors.Is(err, failure) {
		t.Fatalf("err = %v, want the fn error", err)
	}
	if !slices.Equal(undone, []int{2, 1}) {
		t.Errorf("undo order = %v, want [2 1]", undone)
	}
}

func TestWithUndo_KeepsChangesOnSuccess(t *testing.T) {
	ran := false
	err := WithUndo(context.Background(), func(ctx context.Context) error {
		RecordUndo(ctx, func() { ran = true })
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ran {
		t.Error("undo ran after a successful fn")
	}
}

func TestWithUndo_NestedJoinsOuter(t *testing.T) {
	var undone []string

	err := WithUndo(context.Background(), func(ctx context.Context) error {
		RecordUndo(ctx, func() { undone = append(undone, "outer") })

		// The inner call succeeds, but its change belongs to the outer unit.
		if err := WithUndo(ctx, func(ctx context.Context) error {
			RecordUndo(ctx, func() { undone = append(undone, "inner") })
			return nil
		}); err != nil {
			return err
		}
		return errors.New("later step failed")
	})

	if err == nil {
		t.Fatal("expected the outer error")
	}
	if !slices.Equal(undone, []string{"inner", "outer"}) {
		t.Errorf("undone = %v, want [inner outer]", undone)
	}
}

func TestRecordUndo_OutsideWithUndoIsNoop(t *testing.T) {
	RecordUndo(context.Background(), func() { t.Error("undo must not run") })
}
