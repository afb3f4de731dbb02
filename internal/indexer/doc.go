// Package indexer runs wholesale indexing passes over a code graph.
//
// A pass chunks the graph, then builds the keyword index and a new vector
// generation concurrently:
//
//	idx := indexer.New(indexer.Config{
//	    Embedder: remote,
//	    Fallback: embedder.NewLocalProvider(),
//	    Backend:  backend,
//	    KeywordSourcePath: "data/keyword.json",
//	})
//	res, err := idx.IndexGraph(ctx, g)
//	prev := ret.Swap(res.Snapshot)
//
// When the primary embedder fails the fallback is tried once; when both
// fail the pass still succeeds and its snapshot is keyword-only, with the
// reason in Statistics.VectorError. Only an invalid chunk, a failure to
// persist the keyword source, cancellation, or a concurrent pass
// (ErrIndexingInProgress) fail the pass.
//
// Each pass writes a new generation and never touches the one being
// served; the caller drops the previous generation after swapping.
package indexer
