// Package kvstore provides a unified interface for durable, synchronous
// key-value backends that store opaque byte values under string keys.
//
// Backends:
//   - memory: a map guarded by a lock. Not durable across processes, useful
//     for tests and as a baseline.
//   - directory: one file per key on disk. Closest to a preferences file and
//     easy to inspect by hand.
//   - bbolt: a memory-mapped B+tree file. Fast reads, single writer.
//   - sqlite: a single table keyed by (scope, name).
//   - pebble: an LSM tree, scoped by key prefix.
//
// Every backend is opened for an app and a list of namespaces; loaders opened
// for different namespaces never see each other's keys, and Clear only
// affects the namespace of the loader it is called on.
//
// Missing keys are reported by both Read and Delete as errors wrapping
// os.ErrNotExist; check them with errors.Is.
//
// Benchmark notes:
//   - BenchmarkLoader in bench_test.go exercises list/read/write/lookup-missing
//     across backends with varying record counts and parallelism.
//   - SQLite uses a single-writer model; the write benchmark for sqlite runs
//     single-threaded even when parallelism is higher.
//   - Record counts and parallelism can be overridden with the environment
//     variables NATIVESTORE_BENCH_COUNTS and NATIVESTORE_BENCH_PARALLELISM.
package kvstore
