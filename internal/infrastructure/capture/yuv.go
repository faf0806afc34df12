package capture

import "image"

// i420Size returns the byte length of a planar I420 frame.
func i420Size(w, h int) int {
	return w*h + 2*(w/2)*(h/2)
}

// rgbaToI420 converts an RGBA frame to planar I420 in out, which must be
// i420Size bytes. The transform is BT.601 studio range; chroma is subsampled
// 2x2 by averaging the four covered pixels.
func rgbaToI420(img *image.RGBA, out []byte) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	ySize := w * h
	cSize := (w / 2) * (h / 2)
	yPlane := out[:ySize]
	uPlane := out[ySize : ySize+cSize]
	vPlane := out[ySize+cSize:]

	for row := 0; row < h; row++ {
		src := img.Pix[row*img.Stride:]
		for col := 0; col < w; col++ {
			r := int32(src[col*4])
			g := int32(src[col*4+1])
			bb := int32(src[col*4+2])
			yPlane[row*w+col] = clampByte(((66*r + 129*g + 25*bb + 128) >> 8) + 16)
		}
	}

	for row := 0; row < h; row += 2 {
		for col := 0; col < w; col += 2 {
			var rSum, gSum, bSum int32
			for dy := 0; dy < 2; dy++ {
				src := img.Pix[(row+dy)*img.Stride:]
				for dx := 0; dx < 2; dx++ {
					rSum += int32(src[(col+dx)*4])
					gSum += int32(src[(col+dx)*4+1])
					bSum += int32(src[(col+dx)*4+2])
				}
			}
			r, g, bb := rSum/4, gSum/4, bSum/4
			idx := (row/2)*(w/2) + col/2
			uPlane[idx] = clampByte(((-38*r - 74*g + 112*bb + 128) >> 8) + 128)
			vPlane[idx] = clampByte(((112*r - 94*g - 18*bb + 128) >> 8) + 128)
		}
	}
	return out
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
