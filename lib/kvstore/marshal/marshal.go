// Package marshal converts ordered lists of strings to and from the bytes
// stored by a kvstore.Loader.
//
// JSON is the reference format: a plain JSON array of strings, readable by
// any other program sharing the store. CBOR stores each item as a length
// prefixed byte string, so it accepts any Go string, including ones that are
// not valid UTF-8.
package marshal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

// ArrayCodec encodes and decodes an ordered list of strings.
//
// Encode must never return a representation that decodes as absent, and
// Decode must return a non-nil slice on success, even for an empty array.
type ArrayCodec interface {
	Name() string
	Encode(items []string) ([]byte, error)
	Decode(data []byte) ([]string, error)
}

var (
	JSON ArrayCodec = jsonCodec{}
	CBOR ArrayCodec = cborCodec{}
)

// Known lists every codec, in order of preference.
var Known = []ArrayCodec{JSON, CBOR}

// ErrNotArray is returned when a record holds valid data that is not an array.
var ErrNotArray = errors.New("record is not an array of strings")

// ByName returns the codec with the given name, or nil.
func ByName(name string) ArrayCodec {
	for _, codec := range Known {
		if codec.Name() == name {
			return codec
		}
	}
	return nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Encode(items []string) ([]byte, error) {
	for i, item := range items {
		if !utf8.ValidString(item) {
			return nil, fmt.Errorf("item %d is not valid UTF-8, and cannot be represented in JSON", i)
		}
	}
	if items == nil {
		items = []string{}
	}

	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(items); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buffer.Bytes(), []byte("\n")), nil
}

func (jsonCodec) Decode(data []byte) ([]string, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, ErrNotArray
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

type cborCodec struct{}

func (cborCodec) Name() string {
	return "cbor"
}

func (cborCodec) Encode(items []string) ([]byte, error) {
	raw := make([][]byte, len(items))
	for i, item := range items {
		raw[i] = []byte(item)
	}
	return cbor.Marshal(raw)
}

const (
	cborNull      = 0xf6
	cborUndefined = 0xf7
)

func (cborCodec) Decode(data []byte) ([]string, error) {
	if len(data) == 1 && (data[0] == cborNull || data[0] == cborUndefined) {
		return nil, ErrNotArray
	}
	var raw [][]byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	items := make([]string, len(raw))
	for i, item := range raw {
		items[i] = string(item)
	}
	return items, nil
}
