// Package config loads and watches a decaf model file.
//
// The file is YAML (JSON documents are accepted too, YAML being a superset):
//
//	environments: [[0, 0.1], [0.2, 0]]
//	components:
//	  cpu: {redundancy: 2, required: 1, failure: [0.01, 0.02], repair: [1, 1], cascading: {mem: 0.3}}
//	  mem: {redundancy: 4, required: 3, failure: [0.001, 0.001], repair: [0.5, 0.5]}
//	repair_policy: shared
//	generator: {diagonal: auto, workers: 0}
//	solver: {tolerance: 1e-12, max_iterations: 0}
//	requirements: ["availability >= 0.999"]
//
// components is either a mapping keyed by component name or a list of
// entries carrying a name field; cascading is either a mapping from target
// to probability or a list of {target, probability}. In both forms the
// document order is kept, and it fixes the component ordering of the state
// encoding.
//
// Load(path) reads the file, applies defaults (shared repair, auto diagonal,
// GOMAXPROCS workers, 1e-12 tolerance) and validates it. Model violations are
// reported together as a *model.ValidationError.
//
// Watch(ctx, path, opts, onChange) uses fsnotify to reload the file once a
// burst of writes has been quiet for opts.Debounce, and hands every valid
// revision that changes the model to onChange.
package config
