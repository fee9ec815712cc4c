// Package batch partitions an ordered document set into cost-bounded
// batches for per-batch analysis. Partitioning is greedy and
// order-preserving: documents are never reordered across or within
// batches, so the merge step downstream stays deterministic.
package batch

import "dossierforge/internal/document"

// Batch is a cost-bounded, order-preserving group of documents analyzed
// together in one LLM call. TotalCost may exceed the ceiling only when
// the batch holds exactly one oversized document.
type Batch struct {
	Index     int
	Documents []document.Loaded
	TotalCost int
}

// Partition splits docs into batches under ceiling using greedy
// first-fit in input order. A document whose own cost exceeds the ceiling
// is never split: it closes the running batch and forms its own, which
// keeps the algorithm live no matter how large a single document is.
// An empty input yields an empty (nil) result, not an error.
func Partition(docs []document.Loaded, ceiling int) []Batch {
	if len(docs) == 0 {
		return nil
	}

	var batches []Batch
	current := Batch{Index: 0}
	for _, doc := range docs {
		if len(current.Documents) > 0 && current.TotalCost+doc.EstimatedCost > ceiling {
			batches = append(batches, current)
			current = Batch{Index: len(batches)}
		}
		current.Documents = append(current.Documents, doc)
		current.TotalCost += doc.EstimatedCost
	}
	if len(current.Documents) > 0 {
		batches = append(batches, current)
	}
	return batches
}
