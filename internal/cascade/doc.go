// Package cascade enumerates correlated multi-component failure events.
//
// When a unit of type r fails, each direct cascading target of r is
// independently included with its configured probability, and every
// included target recursively triggers its own targets. The aggregate
// transition is a weighted sum over every reachable failure tree rooted at r.
//
// Cache precomputes, per type, all 2^k inclusion patterns of its k cascading
// links together with their included-probability and excluded-complement
// products. Enumerator walks the trees level by level: at each frontier it
// forms the cartesian product of the frontier leaves' patterns, emits the
// tree when the all-excluded combination is reached, and recurses otherwise.
// A link into a type whose units are all down in the source state fires
// without effect: it adds no failure and no node, so its complement is not
// counted either.
//
// The propagation history is an append-only arena of nodes (type, parent,
// chosen pattern) that is truncated on backtrack, and the difference vector
// is copied only when a combination actually adds failures.
package cascade
