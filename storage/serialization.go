// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"bytes"
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/poiesic/assetpipe/core"
)

// Encoding markers written as the first byte of every stored value.
const (
	encodingPlain byte = 0
	encodingZstd  byte = 1
)

// Codec serializes stored values. Documents are JSON, optionally compressed
// with zstd; values written with either setting remain readable by both.
// Catalog entries and checkpoints use generated MUS codecs.
type Codec struct {
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// NewCodec creates a codec. When compress is true new values are zstd-compressed.
func NewCodec(compress bool) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{compress: compress, encoder: enc, decoder: dec}, nil
}

// Close releases the zstd encoder and decoder.
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// MarshalDocument serializes a document.
func (c *Codec) MarshalDocument(doc core.Document) ([]byte, error) {
	return c.marshal(doc)
}

// UnmarshalDocument deserializes a document. Integral numbers come back as int64.
func (c *Codec) UnmarshalDocument(data []byte) (core.Document, error) {
	raw, err := c.unwrap(data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc core.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	NormalizeDocument(doc)
	return doc, nil
}

// MarshalCollection serializes a collection description. Catalog entries are
// fixed structs and use the generated MUS codec.
func (c *Codec) MarshalCollection(col *Collection) ([]byte, error) {
	buf := make([]byte, CollectionMUS.Size(*col))
	CollectionMUS.Marshal(*col, buf)
	return buf, nil
}

// UnmarshalCollection deserializes a collection description.
func (c *Codec) UnmarshalCollection(data []byte) (*Collection, error) {
	col, _, err := CollectionMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: collection: %w", ErrSerializationFailed, err)
	}
	return &col, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func (c *Codec) MarshalCheckpoint(checkpoint *core.Checkpoint) ([]byte, error) {
	buf := make([]byte, core.CheckpointMUS.Size(*checkpoint))
	core.CheckpointMUS.Marshal(*checkpoint, buf)
	return buf, nil
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func (c *Codec) UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	checkpoint, _, err := core.CheckpointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint: %w", ErrSerializationFailed, err)
	}
	return &checkpoint, nil
}

func (c *Codec) marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if !c.compress {
		return append([]byte{encodingPlain}, raw...), nil
	}
	return c.encoder.EncodeAll(raw, []byte{encodingZstd}), nil
}

func (c *Codec) unwrap(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrSerializationFailed)
	}
	switch data[0] {
	case encodingPlain:
		return data[1:], nil
	case encodingZstd:
		raw, err := c.decoder.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: unknown encoding %d", ErrSerializationFailed, data[0])
	}
}

// NormalizeDocument rewrites numeric values in place so integers are int64 and
// other numbers float64, the forms mappings and scripts expect.
func NormalizeDocument(doc core.Document) {
	for k, v := range doc {
		doc[k] = normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n)
		}
		return float64(n)
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
		return float64(n)
	case float32:
		return float64(n)
	case map[string]any:
		for k, inner := range n {
			n[k] = normalizeValue(inner)
		}
		return n
	case []any:
		for i, inner := range n {
			n[i] = normalizeValue(inner)
		}
		return n
	default:
		return v
	}
}
