// Package archive extracts ROM images from .zip and .7z archives,
// supported for every system except Sega CD (whose disc images ship as
// raw .cue/.bin pairs, not compressed archives).
//
// Follows an extractFrom7z/extractFromZip shape; this module also wires
// .rar extraction through the same archive library's rardecode
// dependency, since it is already available and handles the format.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

// ErrNoROMFile is returned when an archive contains no file matching the
// caller's extension allowlist.
var ErrNoROMFile = errors.New("archive: no matching ROM file found")

const maxROMSize = 64 * 1024 * 1024 // generous ceiling; no documented cartridge exceeds this

// Extract opens path (a.zip,.7z, or.rar file) and returns the contents
// and name of the first entry whose extension is in extensions.
func Extract(path string, extensions []string) (data []byte, name string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return extractFromZip(path, extensions)
	case ".7z":
		return extractFrom7z(path, extensions)
	case ".rar":
		return extractFromRAR(path, extensions)
	default:
		return nil, "", fmt.Errorf("archive: unsupported archive extension %q", filepath.Ext(path))
	}
}

func isROMFile(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func limitedRead(r io.Reader) ([]byte, error) {
	lr := io.LimitReader(r, maxROMSize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(data) > maxROMSize {
		return nil, fmt.Errorf("archive: entry exceeds %d byte limit", maxROMSize)
	}
	return data, nil
}

func extractFromZip(path string, extensions []string) ([]byte, string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("archive: failed to open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isROMFile(f.Name, extensions) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("archive: failed to open %s in zip: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := limitedRead(rc)
		if err != nil {
			return nil, "", fmt.Errorf("archive: failed to read %s: %w", f.Name, err)
		}
		return data, filepath.Base(f.Name), nil
	}
	return nil, "", ErrNoROMFile
}

func extractFrom7z(path string, extensions []string) ([]byte, string, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("archive: failed to open 7z: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isROMFile(f.Name, extensions) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("archive: failed to open %s in archive: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := limitedRead(rc)
		if err != nil {
			return nil, "", fmt.Errorf("archive: failed to read %s: %w", f.Name, err)
		}
		return data, filepath.Base(f.Name), nil
	}
	return nil, "", ErrNoROMFile
}

func extractFromRAR(path string, extensions []string) ([]byte, string, error) {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("archive: failed to open rar: %w", err)
	}
	defer r.Close()

	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("archive: failed to read rar entry: %w", err)
		}
		if header.IsDir || !isROMFile(header.Name, extensions) {
			continue
		}
		data, err := limitedRead(r)
		if err != nil {
			return nil, "", fmt.Errorf("archive: failed to read %s: %w", header.Name, err)
		}
		return data, filepath.Base(header.Name), nil
	}
	return nil, "", ErrNoROMFile
}
