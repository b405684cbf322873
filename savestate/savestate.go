// Package savestate implements a versioned, internally-compressed
// save-state container: a save state file is a versioned, compressed
// binary blob. Load validates the version and refuses incompatible
// versions with a user-visible error rather than crashing.
//
// Uses a magic/version/length-prefixed binary layout in the same style
// as a debug snapshot format, with gzip swapped for klauspost/compress's
// zstd.
package savestate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const (
	magic          = "RCSS" // retrocore save state
	currentVersion = 1
)

// ErrVersionMismatch is reported (never panicked) when a save-state file's
// version doesn't match currentVersion: the current session continues
// unaffected.
var ErrVersionMismatch = errors.New("savestate: incompatible version")

// ErrBadMagic is returned for a file that isn't a save-state container at
// all (wrong magic bytes).
var ErrBadMagic = errors.New("savestate: not a save-state file")

// Section is one named, length-prefixed component blob within the
// container (e.g. "cpu0", "vram", "sram"); the System Core composes a
// save state from as many sections as it has components to serialize.
type Section struct {
	Name string
	Data []byte
}

// Container is a full save-state payload: a format version plus an
// ordered list of named sections.
type Container struct {
	Version  uint32
	Sections []Section
}

// Save serializes c and writes it, zstd-compressed, to w.
func Save(w io.Writer, c *Container) error {
	var buf bytes.Buffer
	buf.WriteString(magic)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(currentVersion)); err != nil {
		return fmt.Errorf("savestate: failed to write version: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(c.Sections))); err != nil {
		return fmt.Errorf("savestate: failed to write section count: %w", err)
	}
	for _, s := range c.Sections {
		nameBytes := []byte(s.Name)
		if len(nameBytes) > 255 {
			return fmt.Errorf("savestate: section name %q too long", s.Name)
		}
		buf.WriteByte(byte(len(nameBytes)))
		buf.Write(nameBytes)
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(s.Data))); err != nil {
			return fmt.Errorf("savestate: failed to write section length: %w", err)
		}
		buf.Write(s.Data)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("savestate: failed to create compressor: %w", err)
	}
	if _, err := enc.Write(buf.Bytes()); err != nil {
		enc.Close()
		return fmt.Errorf("savestate: failed to write compressed payload: %w", err)
	}
	return enc.Close()
}

// Load reads and decompresses a save-state container from r. A version
// mismatch returns ErrVersionMismatch wrapping the file's actual version,
// never a panic.
func Load(r io.Reader) (*Container, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("savestate: failed to create decompressor: %w", err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("savestate: failed to decompress payload: %w", err)
	}
	buf := bytes.NewReader(raw)

	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(buf, magicBuf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(magicBuf) != magic {
		return nil, ErrBadMagic
	}

	var version uint32
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("savestate: failed to read version: %w", err)
	}
	if version != currentVersion {
		return nil, fmt.Errorf("%w: file is version %d, expected %d", ErrVersionMismatch, version, currentVersion)
	}

	var count uint32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("savestate: failed to read section count: %w", err)
	}

	c := &Container{Version: version}
	for i := uint32(0); i < count; i++ {
		nameLen, err := buf.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("savestate: failed to read section %d name length: %w", i, err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(buf, nameBytes); err != nil {
			return nil, fmt.Errorf("savestate: failed to read section %d name: %w", i, err)
		}
		var dataLen uint32
		if err := binary.Read(buf, binary.LittleEndian, &dataLen); err != nil {
			return nil, fmt.Errorf("savestate: failed to read section %d length: %w", i, err)
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(buf, data); err != nil {
			return nil, fmt.Errorf("savestate: failed to read section %d data: %w", i, err)
		}
		c.Sections = append(c.Sections, Section{Name: string(nameBytes), Data: data})
	}
	return c, nil
}

// Find returns the section named name, or nil if not present; System Core
// restore paths use this to pull their own component's blob out of a
// loaded container.
func (c *Container) Find(name string) []byte {
	for _, s := range c.Sections {
		if s.Name == name {
			return s.Data
		}
	}
	return nil
}
