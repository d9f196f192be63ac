package terrain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Chunk wire format, little-endian:
//
//	u8  version = 1
//	u16 resolution R
//	f64 minElevation
//	f64 maxElevation
//	f32 heights[(R+1)^2]   row-major, z*(R+1)+x
//
// Total size is 19 + 4*(R+1)^2 bytes. The layout is contractual: clients
// parse it directly, and the version byte is the only evolution hook.
const (
	// FormatVersion is the current chunk wire format version
	FormatVersion = 1

	headerSize = 19

	// MaxResolution is the largest resolution the u16 field can carry
	MaxResolution = 65535
)

var (
	// ErrUnsupportedVersion indicates a chunk payload with an unknown format version
	ErrUnsupportedVersion = errors.New("unsupported chunk format version")
	// ErrSizeMismatch indicates a chunk payload whose length contradicts its resolution
	ErrSizeMismatch = errors.New("chunk payload size mismatch")
	// ErrInvariant indicates an internally inconsistent chunk
	ErrInvariant = errors.New("chunk invariant violation")
)

// SerializedSize returns the wire size in bytes of a chunk at the given
// resolution.
func SerializedSize(resolution int) int {
	gridSize := resolution + 1
	return headerSize + 4*gridSize*gridSize
}

// Serialize encodes a chunk to its wire format. The same chunk always
// produces byte-identical output.
func Serialize(c *Chunk) ([]byte, error) {
	if c.Resolution < 1 || c.Resolution > MaxResolution {
		return nil, fmt.Errorf("%w: resolution %d", ErrInvariant, c.Resolution)
	}
	gridSize := c.GridSize()
	if len(c.Heights) != gridSize*gridSize {
		return nil, fmt.Errorf("%w: %d heights for resolution %d, want %d",
			ErrInvariant, len(c.Heights), c.Resolution, gridSize*gridSize)
	}

	buf := bytes.NewBuffer(make([]byte, 0, SerializedSize(c.Resolution)))
	buf.WriteByte(FormatVersion)
	if err := binary.Write(buf, binary.LittleEndian, uint16(c.Resolution)); err != nil {
		return nil, fmt.Errorf("failed to write resolution: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, c.MinElevation); err != nil {
		return nil, fmt.Errorf("failed to write min elevation: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, c.MaxElevation); err != nil {
		return nil, fmt.Errorf("failed to write max elevation: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, c.Heights); err != nil {
		return nil, fmt.Errorf("failed to write heights: %w", err)
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a chunk payload. The chunk coordinates are not part of
// the wire format (the object key carries them), so the caller supplies them.
func Deserialize(data []byte, chunkX, chunkZ int) (*Chunk, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrSizeMismatch, len(data))
	}
	if data[0] != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	r := bytes.NewReader(data[1:])
	var resolution uint16
	if err := binary.Read(r, binary.LittleEndian, &resolution); err != nil {
		return nil, fmt.Errorf("failed to read resolution: %w", err)
	}
	if want := SerializedSize(int(resolution)); len(data) != want {
		return nil, fmt.Errorf("%w: %d bytes for resolution %d, want %d",
			ErrSizeMismatch, len(data), resolution, want)
	}

	chunk := &Chunk{
		ChunkX:     chunkX,
		ChunkZ:     chunkZ,
		Resolution: int(resolution),
	}
	if err := binary.Read(r, binary.LittleEndian, &chunk.MinElevation); err != nil {
		return nil, fmt.Errorf("failed to read min elevation: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &chunk.MaxElevation); err != nil {
		return nil, fmt.Errorf("failed to read max elevation: %w", err)
	}
	gridSize := chunk.GridSize()
	chunk.Heights = make([]float32, gridSize*gridSize)
	if err := binary.Read(r, binary.LittleEndian, chunk.Heights); err != nil {
		return nil, fmt.Errorf("failed to read heights: %w", err)
	}
	return chunk, nil
}
