package storage

import (
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	manifestVersion = 1
	manifestSuffix  = ".manifest"
)

var (
	ErrManifest       = errors.New("malformed manifest")
	ErrDigestMismatch = errors.New("file digest does not match the manifest")
)

// Manifest field numbers.
const (
	fieldVersion      protowire.Number = 1
	fieldMode         protowire.Number = 2
	fieldImages       protowire.Number = 3
	fieldLocalDigest  protowire.Number = 4
	fieldGlobalDigest protowire.Number = 5
)

// Manifest describes a stored index pair so that a later load can tell a
// stale or mismatched file apart. Digests cover the bytes as stored.
type Manifest struct {
	Version      uint64
	Mode         int
	Images       int
	LocalDigest  [32]byte
	GlobalDigest [32]byte
}

// NewManifest digests the stored local and global files.
func NewManifest(mode, images int, localRaw, globalRaw []byte) *Manifest {
	return &Manifest{
		Version:      manifestVersion,
		Mode:         mode,
		Images:       images,
		LocalDigest:  blake3.Sum256(localRaw),
		GlobalDigest: blake3.Sum256(globalRaw),
	}
}

// Marshal encodes m in the protobuf wire format.
func (m *Manifest) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Version)
	b = protowire.AppendTag(b, fieldMode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Mode))
	b = protowire.AppendTag(b, fieldImages, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Images))
	b = protowire.AppendTag(b, fieldLocalDigest, protowire.BytesType)
	b = protowire.AppendBytes(b, m.LocalDigest[:])
	b = protowire.AppendTag(b, fieldGlobalDigest, protowire.BytesType)
	b = protowire.AppendBytes(b, m.GlobalDigest[:])
	return b
}

// UnmarshalManifest decodes a manifest, skipping unknown fields.
func UnmarshalManifest(b []byte) (*Manifest, error) {
	m := &Manifest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrManifest, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case typ == protowire.VarintType && (num == fieldVersion || num == fieldMode || num == fieldImages):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrManifest, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldVersion:
				m.Version = v
			case fieldMode:
				m.Mode = int(v)
			default:
				m.Images = int(v)
			}
		case typ == protowire.BytesType && (num == fieldLocalDigest || num == fieldGlobalDigest):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrManifest, protowire.ParseError(n))
			}
			b = b[n:]
			if len(v) != 32 {
				return nil, fmt.Errorf("%w: digest of %d bytes", ErrManifest, len(v))
			}
			if num == fieldLocalDigest {
				copy(m.LocalDigest[:], v)
			} else {
				copy(m.GlobalDigest[:], v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrManifest, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: version %d", ErrManifest, m.Version)
	}
	return m, nil
}

// Verify checks the stored bytes against the digests.
func (m *Manifest) Verify(localRaw, globalRaw []byte) error {
	if blake3.Sum256(localRaw) != m.LocalDigest {
		return fmt.Errorf("local file: %w", ErrDigestMismatch)
	}
	if blake3.Sum256(globalRaw) != m.GlobalDigest {
		return fmt.Errorf("global file: %w", ErrDigestMismatch)
	}
	return nil
}
