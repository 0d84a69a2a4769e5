package kvstore_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ccontavalli/nativestore/lib/kvstore"
	kvbbolt "github.com/ccontavalli/nativestore/lib/kvstore/bbolt"
	"github.com/ccontavalli/nativestore/lib/kvstore/directory"
	"github.com/ccontavalli/nativestore/lib/kvstore/memory"
	kvpebble "github.com/ccontavalli/nativestore/lib/kvstore/pebble"
	"github.com/ccontavalli/nativestore/lib/kvstore/sqlite"
)

var benchValue = []byte(`["value"]`)

var benchRecordCounts = []int{1, 100, 1000}
var benchParallelism = []int{1, 4}

type backend struct {
	name string
	open func(tb testing.TB) (kvstore.Loader, func(), error)
}

type op struct {
	name string
	run  func(b *testing.B, backend backend, loader kvstore.Loader, keys []string, miss func(int) string)
}

func BenchmarkLoader(b *testing.B) {
	recordCounts := benchIntsFromEnv(b, "NATIVESTORE_BENCH_COUNTS", benchRecordCounts)
	parallelismValues := benchIntsFromEnv(b, "NATIVESTORE_BENCH_PARALLELISM", benchParallelism)

	for _, backend := range benchBackends() {
		b.Run(backend.name, func(b *testing.B) {
			for _, operation := range benchOps() {
				b.Run(operation.name, func(b *testing.B) {
					for _, count := range recordCounts {
						b.Run(fmt.Sprintf("n=%d", count), func(b *testing.B) {
							for _, parallelism := range parallelismValues {
								b.Run(fmt.Sprintf("p=%d", parallelism), func(b *testing.B) {
									loader, cleanup, err := backend.open(b)
									if err != nil {
										b.Fatal(err)
									}
									defer cleanup()

									keys := benchKeys(count)
									populate(b, loader, keys)

									b.ResetTimer()
									b.SetParallelism(parallelism)
									operation.run(b, backend, loader, keys, benchMissingKey)
								})
							}
						})
					}
				})
			}
		})
	}
}

func benchOps() []op {
	return []op{
		{
			name: "List",
			run: func(b *testing.B, backend backend, loader kvstore.Loader, keys []string, miss func(int) string) {
				for i := 0; i < b.N; i++ {
					if _, err := loader.List(); err != nil {
						b.Fatal(err)
					}
				}
			},
		},
		{
			name: "Read",
			run: func(b *testing.B, backend backend, loader kvstore.Loader, keys []string, miss func(int) string) {
				var counter uint64
				b.RunParallel(func(pb *testing.PB) {
					for pb.Next() {
						index := int(atomic.AddUint64(&counter, 1)-1) % len(keys)
						if _, err := loader.Read(keys[index]); err != nil {
							b.Fatal(err)
						}
					}
				})
			},
		},
		{
			name: "Write",
			run: func(b *testing.B, backend backend, loader kvstore.Loader, keys []string, miss func(int) string) {
				if backend.name == "sqlite" {
					for i := 0; i < b.N; i++ {
						if err := loader.Write(keys[i%len(keys)], benchValue); err != nil {
							b.Fatal(err)
						}
					}
					return
				}

				var counter uint64
				b.RunParallel(func(pb *testing.PB) {
					for pb.Next() {
						index := int(atomic.AddUint64(&counter, 1)-1) % len(keys)
						if err := writeWithRetry(backend.name, loader, keys[index]); err != nil {
							b.Fatal(err)
						}
					}
				})
			},
		},
		{
			name: "LookupMissing",
			run: func(b *testing.B, backend backend, loader kvstore.Loader, keys []string, miss func(int) string) {
				var counter uint64
				b.RunParallel(func(pb *testing.PB) {
					for pb.Next() {
						index := atomic.AddUint64(&counter, 1) - 1
						if _, err := loader.Read(miss(int(index))); !errors.Is(err, os.ErrNotExist) {
							b.Fatalf("expected not-exist error, got %v", err)
						}
					}
				})
			},
		},
	}
}

func tempPath(tb testing.TB, pattern string) (string, error) {
	tb.Helper()
	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func benchBackends() []backend {
	return []backend{
		{
			name: "memory",
			open: func(tb testing.TB) (kvstore.Loader, func(), error) {
				loader := memory.New()
				return loader, func() { loader.Close() }, nil
			},
		},
		{
			name: "directory",
			open: func(tb testing.TB) (kvstore.Loader, func(), error) {
				tb.Helper()
				dir, err := os.MkdirTemp("", "kvstore-bench-dir")
				if err != nil {
					return nil, nil, err
				}
				loader, err := directory.OpenDir(dir, "app", "ns")
				if err != nil {
					os.RemoveAll(dir)
					return nil, nil, err
				}
				return loader, func() { _ = os.RemoveAll(dir) }, nil
			},
		},
		{
			name: "sqlite",
			open: func(tb testing.TB) (kvstore.Loader, func(), error) {
				path, err := tempPath(tb, "kvstore-bench-sqlite-*.db")
				if err != nil {
					return nil, nil, err
				}
				db, err := sqlite.New(
					sqlite.WithPath(path),
					sqlite.WithJournalMode("WAL"),
					sqlite.WithSynchronous("NORMAL"),
					sqlite.WithBusyTimeout(5000),
					sqlite.WithMaxOpenConns(8),
					sqlite.WithMaxIdleConns(8),
				)
				if err != nil {
					os.Remove(path)
					return nil, nil, err
				}
				loader, err := db.Open("app", "ns")
				if err != nil {
					db.Close()
					os.Remove(path)
					return nil, nil, err
				}
				cleanup := func() {
					_ = db.Close()
					_ = os.Remove(path)
					_ = os.Remove(path + "-wal")
					_ = os.Remove(path + "-shm")
				}
				return loader, cleanup, nil
			},
		},
		{
			name: "bbolt",
			open: func(tb testing.TB) (kvstore.Loader, func(), error) {
				path, err := tempPath(tb, "kvstore-bench-bbolt-*.db")
				if err != nil {
					return nil, nil, err
				}
				db, err := kvbbolt.New(kvbbolt.WithPath(path))
				if err != nil {
					os.Remove(path)
					return nil, nil, err
				}
				loader, err := db.Open("app", "ns")
				if err != nil {
					db.Close()
					os.Remove(path)
					return nil, nil, err
				}
				cleanup := func() {
					_ = db.Close()
					_ = os.Remove(path)
				}
				return loader, cleanup, nil
			},
		},
		{
			name: "pebble",
			open: func(tb testing.TB) (kvstore.Loader, func(), error) {
				dir, err := os.MkdirTemp("", "kvstore-bench-pebble")
				if err != nil {
					return nil, nil, err
				}
				db, err := kvpebble.New(kvpebble.WithPath(filepath.Join(dir, "db")))
				if err != nil {
					os.RemoveAll(dir)
					return nil, nil, err
				}
				loader, err := db.Open("app", "ns")
				if err != nil {
					db.Close()
					os.RemoveAll(dir)
					return nil, nil, err
				}
				cleanup := func() {
					_ = db.Close()
					_ = os.RemoveAll(dir)
				}
				return loader, cleanup, nil
			},
		},
	}
}

func populate(tb testing.TB, loader kvstore.Loader, keys []string) {
	tb.Helper()
	for _, key := range keys {
		if err := loader.Write(key, benchValue); err != nil {
			tb.Fatalf("populate %s: %v", key, err)
		}
	}
}

func benchKeys(count int) []string {
	keys := make([]string, count)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	return keys
}

func benchMissingKey(index int) string {
	return fmt.Sprintf("missing-%d", index)
}

func writeWithRetry(backendName string, loader kvstore.Loader, key string) error {
	err := loader.Write(key, benchValue)
	if err == nil || backendName != "sqlite" || !isSQLiteBusy(err) {
		return err
	}

	for i := 0; i < 20; i++ {
		time.Sleep(5 * time.Millisecond)
		err = loader.Write(key, benchValue)
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "SQLITE_BUSY") || strings.Contains(message, "database is locked")
}

func benchIntsFromEnv(b *testing.B, name string, fallback []int) []int {
	b.Helper()
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	fields := strings.Split(raw, ",")
	result := make([]int, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed == "" {
			continue
		}
		value, err := strconv.Atoi(trimmed)
		if err != nil {
			b.Fatalf("invalid %s value %q: %v", name, trimmed, err)
		}
		result = append(result, value)
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
