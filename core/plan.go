package core

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// BranchQuery is one partitioned branch of a parallel rewrite.
type BranchQuery struct {
	Index     int    // partition index in [0, WorkerCount)
	Predicate string // conjunct added to the branch WHERE clause
	Limit     int    // per-branch row limit, 0 for unbounded
}

// PartitionPlan describes how a statement was split across workers.
// Branch predicates are collectively exhaustive and pairwise disjoint
// over any deterministic key: mod-based partitioning assigns every key
// hash to exactly one branch.
type PartitionPlan struct {
	WorkerCount int
	KeyExpr     string // the partition key expression used in predicates
	Branches    []BranchQuery
}

// AssignBranches buckets sampled key hashes by the branch that would
// receive them, returning one membership bitmap per branch. Bitmap values
// are positions into keyHashes.
func (p *PartitionPlan) AssignBranches(keyHashes []uint64) []*roaring.Bitmap {
	bitmaps := make([]*roaring.Bitmap, p.WorkerCount)
	for i := range bitmaps {
		bitmaps[i] = roaring.New()
	}
	n := uint64(p.WorkerCount)
	for pos, h := range keyHashes {
		bitmaps[h%n].Add(uint32(pos))
	}
	return bitmaps
}

// VerifyCoverage checks the partition invariant over sampled key hashes:
// every key lands in exactly one branch (exhaustive) and no key lands in
// two (disjoint).
func (p *PartitionPlan) VerifyCoverage(keyHashes []uint64) error {
	if p.WorkerCount < 1 {
		return fmt.Errorf("partition plan has no workers")
	}
	if len(p.Branches) != 0 && len(p.Branches) != p.WorkerCount {
		return fmt.Errorf("partition plan has %d branches for %d workers", len(p.Branches), p.WorkerCount)
	}

	bitmaps := p.AssignBranches(keyHashes)
	union := roaring.New()
	for i, bm := range bitmaps {
		for j := i + 1; j < len(bitmaps); j++ {
			if overlap := roaring.And(bm, bitmaps[j]); overlap.GetCardinality() > 0 {
				return fmt.Errorf("branches %d and %d overlap on %d keys", i, j, overlap.GetCardinality())
			}
		}
		union.Or(bm)
	}
	if got, want := union.GetCardinality(), uint64(len(keyHashes)); got != want {
		return fmt.Errorf("branches cover %d of %d keys", got, want)
	}
	return nil
}
