// Package query holds the store-agnostic vocabulary accepted and returned by
// model operations: filters, update specifications, aggregation pipelines,
// find options, index declarations and write results.
//
// All values are immutable once built; builder methods return copies.
package query
