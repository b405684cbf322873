// Image-level operations: sector reads, audio playback, and the
// seek-latency model, built on a per-track file-offset lookup and the
// drive's documented minimum-seek-time floor for small seeks.
package cdrom

import (
	"errors"
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sys/unix"
)

// ErrCHDUnsupported is returned by OpenCHD: this module ships only a
// format-detection stub for CHD (the names "CUE/BIN or CHD" but the
// CHD codec itself — a zlib/flac/huffman hybrid container — has no
// grounding source in this module's example pack).
var ErrCHDUnsupported = errors.New("cdrom: CHD images are not yet supported, use CUE/BIN")

// seekMinLatency is the minimum-seek-time floor applied to every seek,
// modeled on the documented ~1/75s sector-access floor real CD drives
// exhibit even for same-track seeks.
const seekMinLatency = 13 * time.Millisecond

// seekPerSectorLatency approximates additional seek time proportional to
// how far the head must travel, scaled so a full-disc seek costs roughly
// the documented ~200-300ms worst case.
const seekPerSectorLatency = 750 * time.Nanosecond // ~333,000 sectors x 750ns = ~250ms

// Image is an open disc image: a parsed CueSheet plus open os.File
// handles for the track data and an LRU sector cache.
type Image struct {
	Sheet *CueSheet

	files map[string]*os.File
	cache *lru.Cache[int, [sectorSize]byte]

	headLBA int
}

// Open parses the CUE sheet at path and opens its backing BIN files.
func Open(path string) (*Image, error) {
	sheet, err := ParseCue(path)
	if err != nil {
		return nil, err
	}
	img := &Image{Sheet: sheet, files: map[string]*os.File{}}
	cache, err := lru.New[int, [sectorSize]byte](256)
	if err != nil {
		return nil, fmt.Errorf("cdrom: failed to create sector cache: %w", err)
	}
	img.cache = cache

	for _, t := range sheet.Tracks {
		if _, ok := img.files[t.File]; ok {
			continue
		}
		f, err := os.Open(t.File)
		if err != nil {
			return nil, fmt.Errorf("cdrom: failed to open track file %q: %w", t.File, err)
		}
		img.files[t.File] = f
		_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM)
	}
	return img, nil
}

// OpenCHD always fails per ErrCHDUnsupported; present so callers can
// dispatch on file extension without a type switch leaking into the
// System Core.
func OpenCHD(path string) (*Image, error) {
	return nil, ErrCHDUnsupported
}

// Close releases the image's open file handles.
func (img *Image) Close() error {
	var firstErr error
	for _, f := range img.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReadSector returns the raw 2352-byte sector at lba, consulting the LRU
// cache first.
func (img *Image) ReadSector(lba int) ([sectorSize]byte, error) {
	if sec, ok := img.cache.Get(lba); ok {
		img.headLBA = lba
		return sec, nil
	}

	track, ok := img.Sheet.FindTrackByLBA(lba)
	if !ok {
		return [sectorSize]byte{}, fmt.Errorf("cdrom: lba %d past end of disc", lba)
	}
	f, ok := img.files[track.File]
	if !ok {
		return [sectorSize]byte{}, fmt.Errorf("cdrom: track file %q not open", track.File)
	}

	offsetSectors := lba - track.StartLBA
	byteOffset := int64(track.FileOffset + offsetSectors*sectorSize)

	var sec [sectorSize]byte
	if _, err := f.ReadAt(sec[:], byteOffset); err != nil {
		return sec, fmt.Errorf("cdrom: failed to read sector %d: %w", lba, err)
	}
	img.cache.Add(lba, sec)
	img.headLBA = lba
	return sec, nil
}

// SeekLatency returns the modeled time the drive takes to seek from its
// current head position to target, applying the minimum-time floor for
// small seeks.
func (img *Image) SeekLatency(target int) time.Duration {
	distance := target - img.headLBA
	if distance < 0 {
		distance = -distance
	}
	latency := seekMinLatency + time.Duration(distance)*seekPerSectorLatency
	if latency < seekMinLatency {
		return seekMinLatency
	}
	return latency
}

// AudioFrame is one stereo 16-bit PCM frame decoded from a CD-DA sector,
// the unit PlayAudio streams out for the Sega CD's CDD-to-PCM audio path.
type AudioFrame struct {
	Left, Right int16
}

// PlayAudio returns every audio frame between start_lba and end_lba
// (inclusive). Each 2352-byte audio sector decodes to 588 stereo 16-bit
// little-endian PCM frames, the documented Red Book CD-DA sample layout.
func (img *Image) PlayAudio(startLBA, endLBA int) ([]AudioFrame, error) {
	var frames []AudioFrame
	for lba := startLBA; lba <= endLBA; lba++ {
		sec, err := img.ReadSector(lba)
		if err != nil {
			return frames, err
		}
		for i := 0; i < sectorSize; i += 4 {
			l := int16(sec[i]) | int16(sec[i+1])<<8
			r := int16(sec[i+2]) | int16(sec[i+3])<<8
			frames = append(frames, AudioFrame{Left: l, Right: r})
		}
	}
	return frames, nil
}
