// Package store holds the in-memory transaction batch for a single evaluation
// run, along with the grouping and ordering views the rules read from.
//
// A Batch is built once and only read afterwards, so it needs no locking and
// can be shared by detectors running concurrently. Partitions returned by the
// grouping helpers own their slices; nothing aliases the batch's backing array.
package store

import (
	"sort"

	"lumina/txn-monitor/internal/domain"
)

// Batch is an immutable, ordered sequence of transactions.
type Batch struct {
	txns []domain.Transaction
}

// New copies txns into a new Batch.
func New(txns []domain.Transaction) *Batch {
	owned := make([]domain.Transaction, len(txns))
	copy(owned, txns)
	return &Batch{txns: owned}
}

// Len returns the number of transactions in the batch.
func (b *Batch) Len() int {
	return len(b.txns)
}

// All returns a copy of every transaction in input order.
func (b *Batch) All() []domain.Transaction {
	out := make([]domain.Transaction, len(b.txns))
	copy(out, b.txns)
	return out
}

// Each calls fn for every transaction in input order.
func (b *Batch) Each(fn func(domain.Transaction)) {
	for _, tx := range b.txns {
		fn(tx)
	}
}

// ─── Grouping ─────────────────────────────────────────────────────────────────

// Partition is the subsequence of a batch sharing one key.
type Partition struct {
	Key          string
	Transactions []domain.Transaction
}

// GroupByUser partitions the batch by user ID.
func (b *Batch) GroupByUser() []Partition {
	return group(b.txns, func(tx domain.Transaction) string { return tx.UserID })
}

// GroupByMerchant partitions the batch by merchant name.
func (b *Batch) GroupByMerchant() []Partition {
	return group(b.txns, func(tx domain.Transaction) string { return tx.MerchantName })
}

// group makes one pass over txns. Partitions come back in the order their key
// was first seen and keep the input's relative order inside each partition.
func group(txns []domain.Transaction, key func(domain.Transaction) string) []Partition {
	index := make(map[string]int)
	var parts []Partition

	for _, tx := range txns {
		k := key(tx)
		i, seen := index[k]
		if !seen {
			i = len(parts)
			index[k] = i
			parts = append(parts, Partition{Key: k})
		}
		parts[i].Transactions = append(parts[i].Transactions, tx)
	}
	return parts
}

// ─── Ordering ─────────────────────────────────────────────────────────────────

// SortByTime returns a copy of txns ordered by timestamp ascending.
// Equal timestamps keep their input order.
func SortByTime(txns []domain.Transaction) []domain.Transaction {
	sorted := make([]domain.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
