package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
)

// patternFrame fills an I420 frame where every byte is derived from its row
// and column, so a row landing at the wrong offset is detectable.
func patternFrame(w, h int) *ports.VideoFrame {
	buf := make([]byte, i420Size(w, h))
	cw, ch := w/2, h/2

	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			buf[r*w+c] = byte((r*7 + c) & 0xff)
		}
	}
	u := buf[w*h:]
	v := buf[w*h+cw*ch:]
	for r := 0; r < ch; r++ {
		for c := 0; c < cw; c++ {
			u[r*cw+c] = byte((r*3 + c) & 0xff)
			v[r*cw+c] = byte((r*5 + c) & 0xff)
		}
	}
	return &ports.VideoFrame{Width: w, Height: h, I420: buf}
}

func TestEncode_StagesRowsAtPlaneStride(t *testing.T) {
	// 854 is not a multiple of the image allocator's row alignment, so the
	// staged luma rows sit at a wider stride than the packed source rows.
	profile := domain.ProfileFromName("low")
	enc, err := NewVP8Encoder(profile)
	require.NoError(t, err)
	defer enc.Close()

	w, h := profile.Width&^1, profile.Height&^1
	frame := patternFrame(w, h)
	_, err = enc.Encode(frame)
	require.NoError(t, err)

	cw, ch := w/2, h/2
	u := frame.I420[w*h:]
	v := frame.I420[w*h+cw*ch:]

	for _, r := range []int{0, 1, h / 2, h - 1} {
		assert.Equal(t, frame.I420[r*w:(r+1)*w], enc.rawRow(0, r), "luma row %d", r)
	}
	for _, r := range []int{0, 1, ch / 2, ch - 1} {
		assert.Equal(t, u[r*cw:(r+1)*cw], enc.rawRow(1, r), "chroma u row %d", r)
		assert.Equal(t, v[r*cw:(r+1)*cw], enc.rawRow(2, r), "chroma v row %d", r)
	}
}

func TestEncode_StagesRowsAfterResize(t *testing.T) {
	enc, err := NewVP8Encoder(domain.ProfileFromName("low"))
	require.NoError(t, err)
	defer enc.Close()

	// A frame at a new odd-stride size reinitializes the codec; the staging
	// copy must still honor the fresh image's strides.
	w, h := 1366, 768
	frame := patternFrame(w, h)
	_, err = enc.Encode(frame)
	require.NoError(t, err)

	for _, r := range []int{0, h - 1} {
		assert.Equal(t, frame.I420[r*w:(r+1)*w], enc.rawRow(0, r), "luma row %d", r)
	}
}
