// Package state encodes CTMC states as dense mixed-radix integers and
// enumerates the state space of a model.
//
// A State is a tuple (counts, env): counts[t] failed units of type t and the
// operating environment. Codec maps State to index and back without a lookup
// table. The environment is the fastest-varying digit, followed by the
// component types from last to first, each with radix redundancy[t]+1.
//
// Build(m) enumerates every state with an odometer and classifies each one
// as up (every type still meets its requirement) or down.
package state
