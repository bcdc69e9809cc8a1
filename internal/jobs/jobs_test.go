package jobs

import (
	"errors"
	"testing"
)

func TestSubmitConflictPerProvider(t *testing.T) {
	tr := NewTracker(10)
	j1, err := tr.Submit("s3", "alice", []string{"prod"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := tr.Submit("s3", "bob", nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict for same provider, got %v", err)
	}
	if _, err := tr.Submit("vsax", "bob", nil); err != nil {
		t.Fatalf("different provider should not conflict: %v", err)
	}
	tr.Finish(j1.ID)
	if _, err := tr.Submit("s3", "bob", nil); err != nil {
		t.Fatalf("terminal job should not block resubmit: %v", err)
	}
}

func TestLifecycleAndUnitRollup(t *testing.T) {
	tr := NewTracker(10)
	j, _ := tr.Submit("s3", "", []string{"a", "b"})
	tr.Start(j.ID)
	tr.StartUnit(j.ID, "a", "Account A")
	tr.UpdateUnit(j.ID, "a", 50)
	tr.FinishUnit(j.ID, "a", 0, nil)
	tr.StartUnit(j.ID, "b", "Account B")
	tr.FinishUnit(j.ID, "b", 3, nil)
	tr.Finish(j.ID)

	got, ok := tr.Poll(j.ID, "anyone")
	if !ok {
		t.Fatal("job not found after finish")
	}
	if got.Status != StatusCompletedWithErrors {
		t.Fatalf("want completed_with_errors, got %s", got.Status)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatal("missing timestamps")
	}
	if got.Units[0].Status != StatusCompleted || got.Units[0].Percent != 100 {
		t.Fatalf("unit a: %+v", got.Units[0])
	}
	if got.Units[1].Status != StatusCompletedWithErrors || got.Units[1].ErrorCount != 3 {
		t.Fatalf("unit b: %+v", got.Units[1])
	}
}

func TestUnitFailureAndJobFail(t *testing.T) {
	tr := NewTracker(10)
	j, _ := tr.Submit("vsax", "", []string{"g1"})
	tr.Start(j.ID)
	tr.FinishUnit(j.ID, "g1", 0, errors.New("listing failed"))
	tr.Finish(j.ID)
	got, _ := tr.Poll(j.ID, "")
	if got.Status != StatusCompletedWithErrors || got.Units[0].Status != StatusFailed {
		t.Fatalf("got %+v", got)
	}

	j2, _ := tr.Submit("vsax", "", nil)
	tr.Fail(j2.ID, errors.New("catalog unreadable"))
	got2, _ := tr.Poll(j2.ID, "")
	if got2.Status != StatusFailed || got2.Error != "catalog unreadable" {
		t.Fatalf("got %+v", got2)
	}
}

func TestAggregateUnitCounters(t *testing.T) {
	tr := NewTracker(10)
	j, _ := tr.Submit("s3", "", []string{"a", "b", "c"})
	tr.Start(j.ID)
	tr.FinishUnit(j.ID, "a", 0, nil)
	tr.FinishUnit(j.ID, "b", 2, nil)

	got, _ := tr.Poll(j.ID, "")
	if got.TotalUnits != 3 || got.CompletedUnits != 2 || got.FailedUnits != 0 {
		t.Fatalf("mid-flight counters: total=%d completed=%d failed=%d", got.TotalUnits, got.CompletedUnits, got.FailedUnits)
	}

	tr.FinishUnit(j.ID, "c", 0, errors.New("unreachable"))
	tr.Finish(j.ID)
	got, _ = tr.Poll(j.ID, "")
	if got.TotalUnits != 3 || got.CompletedUnits != 2 || got.FailedUnits != 1 {
		t.Fatalf("final counters: total=%d completed=%d failed=%d", got.TotalUnits, got.CompletedUnits, got.FailedUnits)
	}
}

func TestOwnerScoping(t *testing.T) {
	tr := NewTracker(10)
	owned, _ := tr.Submit("s3", "alice", nil)
	shared, _ := tr.Submit("vsax", "", nil)

	if _, ok := tr.Poll(owned.ID, "bob"); ok {
		t.Fatal("bob should not see alice's job")
	}
	if _, ok := tr.Poll(owned.ID, "alice"); !ok {
		t.Fatal("alice should see her job")
	}
	if _, ok := tr.Poll(shared.ID, "bob"); !ok {
		t.Fatal("ownerless job should be visible to anyone")
	}
	if n := len(tr.List("bob")); n != 1 {
		t.Fatalf("bob should list 1 job, got %d", n)
	}
	if n := len(tr.List("alice")); n != 2 {
		t.Fatalf("alice should list 2 jobs, got %d", n)
	}
}

func TestHistoryEviction(t *testing.T) {
	tr := NewTracker(3)
	var ids []string
	for i := 0; i < 5; i++ {
		j, err := tr.Submit("s3", "", nil)
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		ids = append(ids, j.ID)
		tr.Finish(j.ID)
	}
	// Oldest two evicted.
	for _, id := range ids[:2] {
		if _, ok := tr.Poll(id, ""); ok {
			t.Fatalf("job %s should have been evicted", id)
		}
	}
	for _, id := range ids[2:] {
		if _, ok := tr.Poll(id, ""); !ok {
			t.Fatalf("job %s should still be in history", id)
		}
	}
	hist := tr.List("")
	if len(hist) != 3 || hist[0].ID != ids[4] {
		t.Fatalf("history not newest-first: %v", func() []string {
			var s []string
			for _, j := range hist {
				s = append(s, j.ID)
			}
			return s
		}())
	}
}

func TestSnapshotIsolation(t *testing.T) {
	tr := NewTracker(5)
	j, _ := tr.Submit("s3", "", []string{"u"})
	snap, _ := tr.Poll(j.ID, "")
	snap.Units[0].Percent = 99
	snap.Status = StatusFailed
	again, _ := tr.Poll(j.ID, "")
	if again.Units[0].Percent != 0 || again.Status != StatusQueued {
		t.Fatalf("mutating a snapshot leaked into the tracker: %+v", again)
	}
}
