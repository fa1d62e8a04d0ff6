// Package types defines the small set of types shared by every tier of the
// allocator and its callers: typed errors, the OS page source contract, and
// the statistics snapshots returned by the Stats methods.
//
// This package has no dependencies beyond the standard library.
package types
