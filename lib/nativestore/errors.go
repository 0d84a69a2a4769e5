package nativestore

import (
	"errors"
	"fmt"
)

// ErrStoreClosed is returned by every operation once Close was called.
var ErrStoreClosed = errors.New("nativestore: store closed")

// StorageWriteError is returned when the durable backend fails a write,
// a delete or a clear. The cache is left untouched.
type StorageWriteError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageWriteError) Error() string {
	if e.Op == "clear" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s of %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// StorageReadError is returned when the durable backend fails a read for any
// reason other than the key being absent.
type StorageReadError struct {
	Key string
	Err error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("storage read of %q failed: %v", e.Key, e.Err)
}

func (e *StorageReadError) Unwrap() error {
	return e.Err
}

// DecodingError is returned when the durable record of an array key cannot
// be parsed. It means the array is unreadable, not that it is empty or absent.
type DecodingError struct {
	Key   string
	Codec string
	Err   error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("record %q is not a valid %s array: %v", e.Key, e.Codec, e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// EncodingError is returned when an array cannot be represented by the codec.
type EncodingError struct {
	Key   string
	Codec string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("array for %q cannot be encoded as %s: %v", e.Key, e.Codec, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
