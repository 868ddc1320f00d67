// Package store is the SQLite journal of an oakvm process.
//
// Two append-only tables are kept:
//   - class_events: one row per published klass descriptor
//   - attach_operations: one row per completed attach operation
//
// Every row carries a seq from the journal's logical clock. Reads are
// ordered by seq so a trace reads back in publication order regardless of
// wall time.
//
// # Database Configuration
//
//   - WAL mode: trace readers run while the VM writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
