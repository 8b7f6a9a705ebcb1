package execution

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeMP4DurationVersion0(t *testing.T) {
	t.Parallel()

	duration, err := probeMP4Duration(bytes.NewReader(buildMP4(8.5)))

	require.NoError(t, err)
	assert.InDelta(t, 8.5, duration, 0.01)
}

func TestProbeMP4DurationVersion1(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 112)
	payload[0] = 1
	binary.BigEndian.PutUint32(payload[20:24], 600)
	binary.BigEndian.PutUint64(payload[24:32], 6000)
	file := append(makeBox("ftyp", []byte("isom\x00\x00\x02\x00")), makeBox("moov", makeBox("mvhd", payload))...)

	duration, err := probeMP4Duration(bytes.NewReader(file))

	require.NoError(t, err)
	assert.InDelta(t, 10.0, duration, 0.01)
}

func TestProbeMP4DurationSkipsLeadingBoxes(t *testing.T) {
	t.Parallel()

	// mdat before moov, as progressive downloads often arrange it.
	file := makeBox("ftyp", []byte("isom\x00\x00\x02\x00"))
	file = append(file, makeBox("mdat", make([]byte, 256))...)
	file = append(file, buildMP4(5.0)[len(makeBox("ftyp", []byte("isom\x00\x00\x02\x00isomiso2"))):]...)

	duration, err := probeMP4Duration(bytes.NewReader(file))

	require.NoError(t, err)
	assert.InDelta(t, 5.0, duration, 0.01)
}

func TestProbeMP4DurationRejectsNonMP4(t *testing.T) {
	t.Parallel()

	_, err := probeMP4Duration(bytes.NewReader([]byte("<html>not a video</html>")))

	assert.ErrorIs(t, err, errNotMP4)
}

func TestProbeMP4DurationRejectsMissingMoov(t *testing.T) {
	t.Parallel()

	file := makeBox("ftyp", []byte("isom\x00\x00\x02\x00"))
	file = append(file, makeBox("mdat", make([]byte, 64))...)

	_, err := probeMP4Duration(bytes.NewReader(file))

	assert.ErrorIs(t, err, errNoMovie)
}

func TestProbeMP4DurationRejectsZeroTimescale(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 100)
	file := append(makeBox("ftyp", []byte("isom\x00\x00\x02\x00")), makeBox("moov", makeBox("mvhd", payload))...)

	_, err := probeMP4Duration(bytes.NewReader(file))

	assert.ErrorIs(t, err, errBadHeader)
}

func TestProbeMP4DurationRejectsLyingMovieHeaderSize(t *testing.T) {
	t.Parallel()

	// A 46-byte file whose mvhd header declares a 1 TiB extended size. The
	// declared size must be rejected outright, never allocated.
	mvhd := make([]byte, 16)
	binary.BigEndian.PutUint32(mvhd[0:4], 1) // extended size marker
	copy(mvhd[4:8], "mvhd")
	binary.BigEndian.PutUint64(mvhd[8:16], 1<<40)

	file := makeBox("ftyp", []byte("isom\x00\x00\x02\x00"))
	file = append(file, makeBox("moov", mvhd)...)

	_, err := probeMP4Duration(bytes.NewReader(file))

	assert.ErrorIs(t, err, errBadHeader)
}

func TestProbeMP4DurationRejectsOversizedMovieHeader(t *testing.T) {
	t.Parallel()

	// A plain 32-bit size just past the sanity bound.
	payload := make([]byte, maxMovieHeaderSize+1)
	file := append(makeBox("ftyp", []byte("isom\x00\x00\x02\x00")), makeBox("moov", makeBox("mvhd", payload))...)

	_, err := probeMP4Duration(bytes.NewReader(file))

	assert.ErrorIs(t, err, errBadHeader)
}

func TestProbeMP4DurationRejectsTruncatedFile(t *testing.T) {
	t.Parallel()

	file := buildMP4(5.0)
	_, err := probeMP4Duration(bytes.NewReader(file[:len(file)-40]))

	assert.Error(t, err)
}
