package object

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"tabula/internal/core/schema"
	"tabula/internal/core/session"
	"tabula/internal/storage"
)

// Snapshots above this size are stored zstd-compressed.
const compressThreshold = 10 * 1024 // 10KB

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
)

func codec() (*zstd.Encoder, *zstd.Decoder) {
	codecOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		decoder, _ = zstd.NewReader(nil)
	})
	return encoder, decoder
}

// encodeSnapshot serializes a field record for version history,
// compressing large payloads.
func encodeSnapshot(values schema.Record) ([]byte, storage.CompressionAlgo, error) {
	raw, err := json.Marshal(values.Map())
	if err != nil {
		return nil, storage.CompressionNone, fmt.Errorf("marshal snapshot: %w", err)
	}
	if len(raw) <= compressThreshold {
		return raw, storage.CompressionNone, nil
	}
	enc, _ := codec()
	if enc == nil {
		return raw, storage.CompressionNone, nil
	}
	return enc.EncodeAll(raw, nil), storage.CompressionZstd, nil
}

// DecodeSnapshot restores a version-history snapshot to a value map.
func DecodeSnapshot(entry *storage.VersionEntry) (map[string]any, error) {
	raw := entry.Snapshot
	if entry.Compression == storage.CompressionZstd {
		_, dec := codec()
		if dec == nil {
			return nil, fmt.Errorf("zstd decoder unavailable")
		}
		var err error
		raw, err = dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot: %w", err)
		}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return out, nil
}

func userFrom(ctx context.Context) string {
	return session.UserID(ctx)
}
