// Package version contains the types used to address positions inside
// a single Event Stream, and the optimistic concurrency checks based on them.
package version

// Version is the type to specify Event Stream versions.
// Versions should be starting from 1, as they represent the length of a single Event Stream.
type Version uint64
