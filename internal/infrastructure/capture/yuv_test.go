package capture

import (
	"image"
	"image/color"
	"testing"
)

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestRGBAToI420_SolidColors(t *testing.T) {
	tests := []struct {
		name    string
		color   color.RGBA
		wantY   byte
		wantU   byte
		wantV   byte
		epsilon int
	}{
		{name: "black", color: color.RGBA{0, 0, 0, 255}, wantY: 16, wantU: 128, wantV: 128, epsilon: 1},
		{name: "white", color: color.RGBA{255, 255, 255, 255}, wantY: 235, wantU: 128, wantV: 128, epsilon: 1},
		{name: "red", color: color.RGBA{255, 0, 0, 255}, wantY: 81, wantU: 90, wantV: 240, epsilon: 2},
		{name: "green", color: color.RGBA{0, 255, 0, 255}, wantY: 145, wantU: 54, wantV: 34, epsilon: 2},
		{name: "blue", color: color.RGBA{0, 0, 255, 255}, wantY: 41, wantU: 240, wantV: 110, epsilon: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const w, h = 4, 4
			out := rgbaToI420(solidRGBA(w, h, tt.color), make([]byte, i420Size(w, h)))

			ySize := w * h
			cSize := (w / 2) * (h / 2)
			if len(out) != ySize+2*cSize {
				t.Fatalf("output length = %d, want %d", len(out), ySize+2*cSize)
			}

			checkPlane := func(name string, plane []byte, want byte) {
				for i, got := range plane {
					diff := int(got) - int(want)
					if diff < 0 {
						diff = -diff
					}
					if diff > tt.epsilon {
						t.Fatalf("%s[%d] = %d, want %d±%d", name, i, got, want, tt.epsilon)
					}
				}
			}
			checkPlane("Y", out[:ySize], tt.wantY)
			checkPlane("U", out[ySize:ySize+cSize], tt.wantU)
			checkPlane("V", out[ySize+cSize:], tt.wantV)
		})
	}
}

func TestI420Size(t *testing.T) {
	if got := i420Size(854, 480); got != 854*480*3/2 {
		t.Errorf("i420Size(854, 480) = %d, want %d", got, 854*480*3/2)
	}
}
