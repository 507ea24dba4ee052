// Package store declares the tracking-store contract for content records.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
