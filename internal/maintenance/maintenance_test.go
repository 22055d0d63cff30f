package maintenance

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stellarlinkco/coachd/internal/store"
)

func TestExpirePending(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "coach.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	id, err := st.CreatePendingLog(store.PendingLog{
		UserID: "u1", LogType: store.LogTypeMeal, StructuredData: `{"items":[]}`,
	})
	if err != nil {
		t.Fatalf("CreatePendingLog: %v", err)
	}

	// A negative TTL puts the cutoff in the future, so the fresh entry ages
	// out immediately.
	svc := New(st, -time.Hour)
	svc.ExpirePending()

	p, err := st.PendingLog(id)
	if err != nil {
		t.Fatalf("PendingLog: %v", err)
	}
	if p.Status != store.PendingStatusCancelled || p.StatusReason != "expired" {
		t.Fatalf("entry = %+v", p)
	}

	// With a sane TTL, fresh entries survive the sweep.
	id2, _ := st.CreatePendingLog(store.PendingLog{
		UserID: "u1", LogType: store.LogTypeMeal, StructuredData: `{"items":[]}`,
	})
	New(st, 24*time.Hour).ExpirePending()
	p2, _ := st.PendingLog(id2)
	if p2.Status != store.PendingStatusPending {
		t.Fatalf("fresh entry = %+v", p2)
	}
}
