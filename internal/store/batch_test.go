package store_test

import (
	"testing"
	"time"

	"lumina/txn-monitor/internal/domain"
	"lumina/txn-monitor/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTx(user, merchant string, offset time.Duration, amount float64) domain.Transaction {
	return domain.Transaction{
		UserID:       user,
		Timestamp:    base.Add(offset),
		MerchantName: merchant,
		Amount:       amount,
	}
}

// ─── Batch ────────────────────────────────────────────────────────────────────

func TestNew_CopiesInput(t *testing.T) {
	in := []domain.Transaction{newTx("u1", "m1", 0, 10)}
	b := store.New(in)
	in[0].Amount = 999

	if got := b.All()[0].Amount; got != 10 {
		t.Errorf("batch must not alias caller slice, got amount %v", got)
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	b := store.New([]domain.Transaction{newTx("u1", "m1", 0, 10)})
	all := b.All()
	all[0].UserID = "mutated"

	if got := b.All()[0].UserID; got != "u1" {
		t.Errorf("All must return a copy, got user %q", got)
	}
}

func TestEmptyBatch_HasNoPartitions(t *testing.T) {
	b := store.New(nil)
	if b.Len() != 0 {
		t.Errorf("expected 0, got %d", b.Len())
	}
	if parts := b.GroupByUser(); len(parts) != 0 {
		t.Errorf("expected no partitions, got %d", len(parts))
	}
}

// ─── Grouping ─────────────────────────────────────────────────────────────────

func TestGroupByUser_FirstSeenOrderAndStable(t *testing.T) {
	b := store.New([]domain.Transaction{
		newTx("bob", "m1", 0, 1),
		newTx("alice", "m1", time.Minute, 2),
		newTx("bob", "m2", 2*time.Minute, 3),
		newTx("carol", "m3", 3*time.Minute, 4),
		newTx("alice", "m2", 4*time.Minute, 5),
	})

	parts := b.GroupByUser()
	wantKeys := []string{"bob", "alice", "carol"}
	if len(parts) != len(wantKeys) {
		t.Fatalf("expected %d partitions, got %d", len(wantKeys), len(parts))
	}
	for i, k := range wantKeys {
		if parts[i].Key != k {
			t.Errorf("partition %d: expected key %s, got %s", i, k, parts[i].Key)
		}
	}

	bob := parts[0].Transactions
	if len(bob) != 2 || bob[0].Amount != 1 || bob[1].Amount != 3 {
		t.Errorf("bob's partition lost input order: %+v", bob)
	}
}

func TestGroupByMerchant_PartitionSizesSumToBatch(t *testing.T) {
	b := store.New([]domain.Transaction{
		newTx("u1", "coffee", 0, 1),
		newTx("u2", "books", 0, 2),
		newTx("u3", "coffee", 0, 3),
		newTx("u1", "fuel", 0, 4),
	})

	total := 0
	for _, p := range b.GroupByMerchant() {
		if len(p.Transactions) == 0 {
			t.Errorf("partition %s is empty", p.Key)
		}
		total += len(p.Transactions)
	}
	if total != b.Len() {
		t.Errorf("expected partitions to hold %d records, got %d", b.Len(), total)
	}
}

func TestGroupByUser_PartitionsDoNotAlias(t *testing.T) {
	b := store.New([]domain.Transaction{newTx("u1", "m1", 0, 1), newTx("u2", "m1", 0, 2)})
	parts := b.GroupByUser()
	parts[0].Transactions[0].Amount = 100

	if got := b.All()[0].Amount; got != 1 {
		t.Errorf("partition write leaked into batch, got %v", got)
	}
}

// ─── Ordering ─────────────────────────────────────────────────────────────────

func TestSortByTime_AscendingAndStableOnTies(t *testing.T) {
	in := []domain.Transaction{
		newTx("u1", "late", 10*time.Minute, 1),
		newTx("u1", "tie-a", 5*time.Minute, 2),
		newTx("u1", "early", 0, 3),
		newTx("u1", "tie-b", 5*time.Minute, 4),
	}

	got := store.SortByTime(in)
	want := []string{"early", "tie-a", "tie-b", "late"}
	for i, m := range want {
		if got[i].MerchantName != m {
			t.Errorf("position %d: expected %s, got %s", i, m, got[i].MerchantName)
		}
	}
	if in[0].MerchantName != "late" {
		t.Error("SortByTime must not reorder its input")
	}
}
