package kv

import "context"

// AtomicOperation collects checks and mutations for a single Store.Commit.
//
//	res, err := kv.Atomic(store).
//		Check(coinKey, entry.Versionstamp).
//		Set(coinKey, coinBytes).
//		Set(txKey, txBytes).
//		Commit(ctx)
type AtomicOperation struct {
	store     Store
	checks    []Check
	mutations []Mutation
}

// Atomic starts a new atomic operation against store
func Atomic(store Store) *AtomicOperation {
	return &AtomicOperation{store: store}
}

// Check requires key to still carry versionstamp at commit time
func (op *AtomicOperation) Check(key Key, versionstamp Versionstamp) *AtomicOperation {
	op.checks = append(op.checks, Check{Key: key, Versionstamp: versionstamp})
	return op
}

// CheckAbsent requires key to not exist at commit time
func (op *AtomicOperation) CheckAbsent(key Key) *AtomicOperation {
	return op.Check(key, "")
}

// Set queues an unconditional write
func (op *AtomicOperation) Set(key Key, value []byte) *AtomicOperation {
	op.mutations = append(op.mutations, Mutation{Type: MutationSet, Key: key, Value: value})
	return op
}

// Delete queues a delete
func (op *AtomicOperation) Delete(key Key) *AtomicOperation {
	op.mutations = append(op.mutations, Mutation{Type: MutationDelete, Key: key})
	return op
}

// Commit applies the operation
func (op *AtomicOperation) Commit(ctx context.Context) (CommitResult, error) {
	return op.store.Commit(ctx, op.checks, op.mutations)
}
