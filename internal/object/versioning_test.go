package object

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/core/schema"
	"tabula/internal/storage"
)

func TestEncodeSnapshotSmallStaysPlain(t *testing.T) {
	rec := schema.NewRecord([]schema.FieldDef{{Name: "description", Type: schema.TypeString}})
	rec.MustSet("description", "small payload")

	raw, algo, err := encodeSnapshot(rec)
	require.NoError(t, err)
	assert.Equal(t, storage.CompressionNone, algo)

	out, err := DecodeSnapshot(&storage.VersionEntry{Snapshot: raw, Compression: algo})
	require.NoError(t, err)
	assert.Equal(t, "small payload", out["description"])
}

func TestEncodeSnapshotLargeCompressed(t *testing.T) {
	rec := schema.NewRecord([]schema.FieldDef{{Name: "comment", Type: schema.TypeString}})
	big := strings.Repeat("accumulated ledger text ", 2048)
	rec.MustSet("comment", big)

	raw, algo, err := encodeSnapshot(rec)
	require.NoError(t, err)
	require.Equal(t, storage.CompressionZstd, algo)
	assert.Less(t, len(raw), len(big))

	out, err := DecodeSnapshot(&storage.VersionEntry{Snapshot: raw, Compression: algo})
	require.NoError(t, err)
	assert.Equal(t, big, out["comment"])
}

func TestDecodeSnapshotCorrupt(t *testing.T) {
	_, err := DecodeSnapshot(&storage.VersionEntry{
		Snapshot:    []byte("not zstd"),
		Compression: storage.CompressionZstd,
	})
	require.Error(t, err)
}
