// Package lattice implements an embedded, file-backed key/value and
// multi-map storage engine optimised for write-once, read-many
// workloads such as inverted indexes and graph adjacency lists.
//
// A single file holds a schema catalogue, typed fixed-size records,
// variable-length blobs, and two hash-table data structures built on
// top of the record region: the layered hash table (LT), a
// growth-by-doubling open-addressed table with bloom-accelerated
// negative lookups, and the chained layered hash table (CLT), a set
// of independently growable chains, each identified by the offset of
// its own head block, typically reached via an LT mapping an external
// key to that chain's table_id — as an inverted index maps a token to
// the chain holding its postings.
//
// The engine is single-process and single-writer; concurrent access
// from multiple goroutines or processes is not supported beyond the
// advisory OS-level lock taken for the lifetime of an open file.
package lattice
