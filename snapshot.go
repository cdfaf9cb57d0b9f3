package spritenav

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/spritenav/codec"
	"github.com/hupe1980/spritenav/internal/hash"
	"github.com/hupe1980/spritenav/model"
)

// Snapshot layout:
//
//	magic    [4]byte "SNV1"
//	version  uint16
//	nameLen  uint16  codec name length
//	name     []byte
//	origLen  uint32  uncompressed body length
//	crc      uint32  CRC32-C of the compressed body
//	body     []byte  zstd-compressed codec-marshaled snapshotData
var snapshotMagic = [4]byte{'S', 'N', 'V', '1'}

const snapshotFormatVersion = uint16(1)

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// snapshotData is the persisted learned state. The pattern model is
// recomputed from the locations on load, so it is never persisted.
type snapshotData struct {
	ROMID      string                 `json:"rom_id"`
	ROMSize    uint64                 `json:"rom_size"`
	BucketSize uint64                 `json:"bucket_size"`
	Locations  []model.SpriteLocation `json:"locations"`
}

func encodeSnapshot(c codec.Codec, data *snapshotData) ([]byte, error) {
	body, err := c.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(body, nil)

	name := c.Name()
	if len(name) > 0xFFFF {
		return nil, fmt.Errorf("snapshot codec name too long: %d", len(name))
	}

	out := make([]byte, 0, 16+len(name)+len(compressed))
	out = append(out, snapshotMagic[:]...)
	out = binary.LittleEndian.AppendUint16(out, snapshotFormatVersion)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(name)))
	out = append(out, name...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	out = binary.LittleEndian.AppendUint32(out, hash.CRC32C(compressed))
	out = append(out, compressed...)
	return out, nil
}

func decodeSnapshot(raw []byte) (*snapshotData, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: truncated header", ErrSnapshotCorrupt)
	}
	if [4]byte(raw[0:4]) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrSnapshotCorrupt)
	}

	version := binary.LittleEndian.Uint16(raw[4:6])
	if version != snapshotFormatVersion {
		return nil, &SnapshotVersionError{Found: version, Supported: snapshotFormatVersion}
	}

	nameLen := int(binary.LittleEndian.Uint16(raw[6:8]))
	if len(raw) < 8+nameLen+8 {
		return nil, fmt.Errorf("%w: truncated header", ErrSnapshotCorrupt)
	}
	name := string(raw[8 : 8+nameLen])
	c, ok := codec.ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrSnapshotCorrupt, name)
	}

	origLen := binary.LittleEndian.Uint32(raw[8+nameLen : 12+nameLen])
	crc := binary.LittleEndian.Uint32(raw[12+nameLen : 16+nameLen])
	compressed := raw[16+nameLen:]

	if hash.CRC32C(compressed) != crc {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSnapshotCorrupt)
	}

	body, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if uint32(len(body)) != origLen {
		return nil, fmt.Errorf("%w: length mismatch", ErrSnapshotCorrupt)
	}

	var data snapshotData
	if err := c.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return &data, nil
}
