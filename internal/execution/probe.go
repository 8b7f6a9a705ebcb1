package execution

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Errors returned by probeMP4Duration for files that are not usable MP4s.
var (
	errNotMP4    = errors.New("file is not an MP4 container")
	errNoMovie   = errors.New("no moov box found")
	errBadHeader = errors.New("malformed movie header")
)

// maxMovieHeaderSize bounds an mvhd payload. A version 1 header is 112
// bytes; a box claiming more than this is corrupt, and its declared size
// must never reach an allocation.
const maxMovieHeaderSize = 1024

// probeMP4Duration reads the container's movie header and returns the
// declared duration in seconds. It walks top-level boxes looking for moov,
// then moov's children looking for mvhd, skipping everything else without
// reading payloads. Enough structure to catch truncated or non-video
// responses; not a general-purpose parser.
func probeMP4Duration(r io.ReadSeeker) (float64, error) {
	boxType, size, err := readBoxHeader(r)
	if err != nil {
		return 0, errNotMP4
	}
	if boxType != "ftyp" {
		return 0, errNotMP4
	}
	if err := skipBoxPayload(r, size); err != nil {
		return 0, fmt.Errorf("%w: truncated ftyp box", errNotMP4)
	}

	for {
		boxType, size, err := readBoxHeader(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, errNoMovie
			}
			return 0, err
		}

		if boxType == "moov" {
			return findMovieHeader(r, size)
		}

		if err := skipBoxPayload(r, size); err != nil {
			return 0, errNoMovie
		}
	}
}

// findMovieHeader walks the children of a moov box of the given payload
// size and parses the first mvhd it finds.
func findMovieHeader(r io.ReadSeeker, moovSize int64) (float64, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errBadHeader
	}
	end := pos + moovSize

	for pos < end {
		boxType, size, err := readBoxHeader(r)
		if err != nil {
			return 0, errBadHeader
		}

		if boxType == "mvhd" {
			if size > maxMovieHeaderSize {
				return 0, errBadHeader
			}
			return parseMovieHeader(r, size)
		}

		if pos, err = r.Seek(size, io.SeekCurrent); err != nil {
			return 0, errBadHeader
		}
	}
	return 0, errBadHeader
}

// parseMovieHeader decodes an mvhd payload into seconds. Version 0 uses
// 32-bit timestamps and duration; version 1 uses 64-bit.
func parseMovieHeader(r io.Reader, size int64) (float64, error) {
	if size < 20 || size > maxMovieHeaderSize {
		return 0, errBadHeader
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, errBadHeader
	}

	version := payload[0]
	var timescale uint32
	var duration uint64

	switch version {
	case 0:
		// flags(3) creation(4) modification(4) timescale(4) duration(4)
		timescale = binary.BigEndian.Uint32(payload[12:16])
		duration = uint64(binary.BigEndian.Uint32(payload[16:20]))
	case 1:
		// flags(3) creation(8) modification(8) timescale(4) duration(8)
		if len(payload) < 32 {
			return 0, errBadHeader
		}
		timescale = binary.BigEndian.Uint32(payload[20:24])
		duration = binary.BigEndian.Uint64(payload[24:32])
	default:
		return 0, errBadHeader
	}

	if timescale == 0 {
		return 0, errBadHeader
	}
	return float64(duration) / float64(timescale), nil
}

// readBoxHeader reads one box header and returns its type and payload
// size. Supports 64-bit extended sizes; a zero size (box extends to EOF)
// is rejected since mvhd never uses it.
func readBoxHeader(r io.Reader) (string, int64, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", 0, err
	}

	size := int64(binary.BigEndian.Uint32(header[0:4]))
	boxType := string(header[4:8])

	switch {
	case size == 1:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return "", 0, err
		}
		large := binary.BigEndian.Uint64(ext[:])
		if large < 16 {
			return "", 0, errBadHeader
		}
		return boxType, int64(large) - 16, nil
	case size < 8:
		return "", 0, errBadHeader
	default:
		return boxType, size - 8, nil
	}
}

func skipBoxPayload(r io.ReadSeeker, size int64) error {
	_, err := r.Seek(size, io.SeekCurrent)
	return err
}
