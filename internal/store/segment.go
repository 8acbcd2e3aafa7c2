package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

// A packed shard segment:
//
//	header  64 bytes  magic, version, key count, shard, created, dict and payload spans
//	payload           concatenated values
//	dict              JSON SegmentDict
//	footer  32 bytes  dict CRC32, key count, dict offset, dict size, payload size
const (
	MagicBytes    uint32 = 0x47454f53 // "GEOS"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// SegmentHeader is the fixed header at the start of every segment.
type SegmentHeader struct {
	Magic         uint32
	Version       uint32
	KeyCount      uint32
	Shard         uint32
	CreatedAt     int64
	DictOffset    int64
	DictSize      int64
	PayloadOffset int64
	PayloadSize   int64
}

// DictEntry locates one value inside the payload area.
type DictEntry struct {
	ID     string `json:"i"`
	Offset int64  `json:"o"`
	Len    int    `json:"l"`
}

// SegmentDict names the segment contents. Entries are sorted by ID.
type SegmentDict struct {
	Type    string      `json:"type"`
	Source  string      `json:"source"`
	Entries []DictEntry `json:"entries"`
}

// Pack serialises every key of typ in shard into a segment.
func (s *Store) Pack(ctx context.Context, typ string, shard uint32) ([]byte, error) {
	ids, err := s.ListShard(ctx, typ, shard)
	if err != nil {
		return nil, err
	}

	var payload bytes.Buffer
	dict := SegmentDict{Type: typ, Source: s.name, Entries: make([]DictEntry, 0, len(ids))}
	for _, id := range ids {
		data, found, err := s.backend.Get(typ, id)
		if err != nil {
			return nil, fmt.Errorf("packing %s/%s: %w", typ, id, err)
		}
		if !found {
			continue
		}
		dict.Entries = append(dict.Entries, DictEntry{ID: id, Offset: int64(payload.Len()), Len: len(data)})
		payload.Write(data)
	}
	return encodeSegment(dict, shard, payload.Bytes())
}

func encodeSegment(dict SegmentDict, shard uint32, payload []byte) ([]byte, error) {
	dictData, err := json.Marshal(dict)
	if err != nil {
		return nil, fmt.Errorf("marshaling dictionary: %w", err)
	}

	payloadOffset := int64(HeaderSize)
	dictOffset := payloadOffset + int64(len(payload))
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(dict.Entries)))
	binary.LittleEndian.PutUint32(header[12:16], shard)
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(dictOffset))
	binary.LittleEndian.PutUint64(header[32:40], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(header[40:48], uint64(payloadOffset))
	binary.LittleEndian.PutUint64(header[48:56], uint64(len(payload)))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(dict.Entries)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(len(payload)))

	out := make([]byte, 0, HeaderSize+len(payload)+len(dictData)+FooterSize)
	out = append(out, header...)
	out = append(out, payload...)
	out = append(out, dictData...)
	return append(out, footer...), nil
}

// Segment is a decoded, read-only view over packed shard bytes.
type Segment struct {
	header  SegmentHeader
	dict    SegmentDict
	payload []byte
}

// OpenSegment validates data and indexes its dictionary.
func OpenSegment(data []byte) (*Segment, error) {
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: segment of %d bytes is truncated", apperrors.ErrInvalidInput, len(data))
	}
	h := data[:HeaderSize]
	header := SegmentHeader{
		Magic:         binary.LittleEndian.Uint32(h[0:4]),
		Version:       binary.LittleEndian.Uint32(h[4:8]),
		KeyCount:      binary.LittleEndian.Uint32(h[8:12]),
		Shard:         binary.LittleEndian.Uint32(h[12:16]),
		CreatedAt:     int64(binary.LittleEndian.Uint64(h[16:24])),
		DictOffset:    int64(binary.LittleEndian.Uint64(h[24:32])),
		DictSize:      int64(binary.LittleEndian.Uint64(h[32:40])),
		PayloadOffset: int64(binary.LittleEndian.Uint64(h[40:48])),
		PayloadSize:   int64(binary.LittleEndian.Uint64(h[48:56])),
	}
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrInvalidInput, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported segment version %d", apperrors.ErrInvalidInput, header.Version)
	}
	end := int64(len(data) - FooterSize)
	if header.PayloadOffset+header.PayloadSize > end || header.DictOffset+header.DictSize > end ||
		header.PayloadOffset < 0 || header.DictOffset < 0 || header.PayloadSize < 0 || header.DictSize < 0 {
		return nil, fmt.Errorf("%w: segment spans exceed %d bytes", apperrors.ErrInvalidInput, len(data))
	}

	dictData := data[header.DictOffset : header.DictOffset+header.DictSize]
	footer := data[end:]
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(dictData) {
		return nil, fmt.Errorf("%w: dictionary checksum mismatch", apperrors.ErrInvalidInput)
	}
	var dict SegmentDict
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return nil, fmt.Errorf("%w: parsing dictionary: %v", apperrors.ErrInvalidInput, err)
	}
	if uint32(len(dict.Entries)) != header.KeyCount {
		return nil, fmt.Errorf("%w: dictionary holds %d keys, header says %d",
			apperrors.ErrInvalidInput, len(dict.Entries), header.KeyCount)
	}
	payload := data[header.PayloadOffset : header.PayloadOffset+header.PayloadSize]
	for _, e := range dict.Entries {
		if e.Offset < 0 || e.Len < 0 || e.Offset+int64(e.Len) > int64(len(payload)) {
			return nil, fmt.Errorf("%w: entry %q out of payload bounds", apperrors.ErrInvalidInput, e.ID)
		}
	}
	return &Segment{header: header, dict: dict, payload: payload}, nil
}

// Type returns the key type packed in the segment.
func (g *Segment) Type() string { return g.dict.Type }

// Source returns the source name the segment was packed from.
func (g *Segment) Source() string { return g.dict.Source }

// Shard returns the shard number.
func (g *Segment) Shard() uint32 { return g.header.Shard }

// Len returns the number of keys.
func (g *Segment) Len() int { return len(g.dict.Entries) }

// IDs returns the packed ids in order.
func (g *Segment) IDs() []string {
	ids := make([]string, len(g.dict.Entries))
	for i, e := range g.dict.Entries {
		ids[i] = e.ID
	}
	return ids
}

// Get looks up id by binary search.
func (g *Segment) Get(id string) ([]byte, bool) {
	entries := g.dict.Entries
	i := sort.Search(len(entries), func(i int) bool { return entries[i].ID >= id })
	if i >= len(entries) || entries[i].ID != id {
		return nil, false
	}
	e := entries[i]
	return g.payload[e.Offset : e.Offset+int64(e.Len)], true
}

// Unpack writes every key of a packed segment into the store and returns the
// segment's type and key count.
func (s *Store) Unpack(ctx context.Context, data []byte) (string, int, error) {
	seg, err := OpenSegment(data)
	if err != nil {
		return "", 0, err
	}
	for _, e := range seg.dict.Entries {
		v, _ := seg.Get(e.ID)
		if err := s.Set(ctx, seg.Type(), e.ID, append([]byte(nil), v...)); err != nil {
			return "", 0, fmt.Errorf("unpacking %s: %w", e.ID, err)
		}
	}
	s.logger.Info("segment unpacked", "type", seg.Type(), "shard", seg.Shard(), "keys", seg.Len())
	return seg.Type(), seg.Len(), nil
}

// WriteSegmentFile atomically writes a packed segment to path through a
// temporary file.
func WriteSegmentFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}
