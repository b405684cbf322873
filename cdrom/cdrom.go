// Package cdrom implements the Sega CD's disc layer: CUE/BIN parsing,
// a sector cache, and the seek-latency model.
//
// Follows a standard Track/CueSheet data model (track type,
// pregap/pause/postgap, per-track start/end time) with a per-track
// lookup by time (a linear scan here), reworked into idiomatic Go error returns and onto this
// module's LBA-based addressing (minute:second:frame is converted to/from
// LBA via the documented 75-frames-per-second constant) instead of
// carrying a separate time type throughout.
package cdrom

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrMalformedCue is the load-time error for a CUE sheet that fails to
// parse: malformed cue files are surfaced as load-time failures, not
// runtime panics.
var ErrMalformedCue = errors.New("cdrom: malformed cue file")

const (
	framesPerSecond = 75
	sectorSize      = 2352 // raw CD sector size for MODE1/2352 and AUDIO tracks
)

// TrackType distinguishes a data track (disc's boot/program area) from an
// audio track (CD-DA).
type TrackType int

const (
	TrackData TrackType = iota
	TrackAudio
)

func parseTrackType(s string) (TrackType, error) {
	switch s {
	case "MODE1/2352":
		return TrackData, nil
	case "AUDIO":
		return TrackAudio, nil
	default:
		return 0, fmt.Errorf("%w: unsupported track type %q", ErrMalformedCue, s)
	}
}

// Track is one track's timing and backing-file info, using LBA fields
// throughout instead of a separate minute:second:frame time type.
type Track struct {
	Number     int
	Type       TrackType
	File       string
	StartLBA   int
	EndLBA     int
	PregapLBA  int
	FileOffset int // byte offset into File where this track's data begins
}

// EffectiveStartLBA is the LBA at which this track's actual data begins,
// after its pregap.
func (t Track) EffectiveStartLBA() int { return t.StartLBA + t.PregapLBA }

// CueSheet is a parsed CUE file: an ordered, contiguous track list.
type CueSheet struct {
	Tracks []Track
}

// ParseCue parses a.cue file at path, per the documented CUE sheet
// grammar (FILE/TRACK/INDEX lines). Malformed input returns
// ErrMalformedCue wrapping a description of what failed, never a panic.
func ParseCue(path string) (*CueSheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cdrom: failed to open cue file: %w", err)
	}
	defer f.Close()

	dir := filepath.Dir(path)
	var tracks []Track
	var curFile string
	var curNumber int
	var curType TrackType
	indexes := map[int]int{} // index number -> LBA, for the current track

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := splitCueLine(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "FILE":
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: FILE line missing filename", ErrMalformedCue)
			}
			curFile = filepath.Join(dir, fields[1])
		case "TRACK":
			if len(fields) < 3 {
				return nil, fmt.Errorf("%w: TRACK line missing number/type", ErrMalformedCue)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%w: bad track number %q", ErrMalformedCue, fields[1])
			}
			tt, err := parseTrackType(fields[2])
			if err != nil {
				return nil, err
			}
			curNumber, curType = n, tt
			indexes = map[int]int{}
		case "INDEX":
			if len(fields) < 3 {
				return nil, fmt.Errorf("%w: INDEX line malformed", ErrMalformedCue)
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%w: bad index number %q", ErrMalformedCue, fields[1])
			}
			lba, err := parseMSF(fields[2])
			if err != nil {
				return nil, err
			}
			indexes[idx] = lba
			if idx == 1 {
				start := indexes[1]
				pregap := 0
				if p, ok := indexes[0]; ok {
					pregap = start - p
				}
				tracks = append(tracks, Track{
					Number:    curNumber,
					Type:      curType,
					File:      curFile,
					StartLBA:  start - pregap,
					PregapLBA: pregap,
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCue, err)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no tracks found", ErrMalformedCue)
	}

	finalizeTrackList(tracks)
	return &CueSheet{Tracks: tracks}, nil
}

func splitCueLine(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, c := range line {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ' ' && !inQuotes:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(c)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

func parseMSF(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: bad MSF %q", ErrMalformedCue, s)
	}
	m, err1 := strconv.Atoi(parts[0])
	sec, err2 := strconv.Atoi(parts[1])
	fr, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("%w: bad MSF %q", ErrMalformedCue, s)
	}
	return (m*60+sec)*framesPerSecond + fr, nil
}

// finalizeTrackList fills in each track's EndLBA from the next track's
// start. The final track's EndLBA stays 0, which FindTrackByLBA treats as
// open-ended; no end is derived from the backing file's size.
func finalizeTrackList(tracks []Track) {
	for i := 0; i < len(tracks)-1; i++ {
		tracks[i].EndLBA = tracks[i+1].StartLBA - 1
	}
}

// FindTrackByLBA returns the track containing lba, implemented here as a
// linear scan since CUE sheets have at most a few dozen tracks.
func (c *CueSheet) FindTrackByLBA(lba int) (*Track, bool) {
	for i := range c.Tracks {
		t := &c.Tracks[i]
		if lba >= t.StartLBA && (t.EndLBA == 0 || lba <= t.EndLBA || i == len(c.Tracks)-1) {
			return t, true
		}
	}
	return nil, false
}
