package capture

/*
#cgo pkg-config: vpx
#include <stdlib.h>
#include <string.h>
#include <vpx/vpx_encoder.h>
#include <vpx/vp8cx.h>

typedef struct {
    vpx_codec_ctx_t codec;
    vpx_image_t raw;
    int width;
    int height;
    int fps;
    int bitrate;
    long frame_count;
    int initialized;
} vp8_encoder_t;

static vp8_encoder_t* vp8_create(int width, int height, int fps, int bitrate) {
    vp8_encoder_t* enc = (vp8_encoder_t*)calloc(1, sizeof(vp8_encoder_t));
    if (!enc) return NULL;

    enc->width = width;
    enc->height = height;
    enc->fps = fps;
    enc->bitrate = bitrate;

    vpx_codec_enc_cfg_t cfg;
    if (vpx_codec_enc_config_default(vpx_codec_vp8_cx(), &cfg, 0) != VPX_CODEC_OK) {
        free(enc);
        return NULL;
    }

    cfg.g_w = width;
    cfg.g_h = height;
    cfg.g_timebase.num = 1;
    cfg.g_timebase.den = fps;
    cfg.rc_target_bitrate = bitrate;
    cfg.rc_end_usage = VPX_CBR;
    cfg.g_error_resilient = VPX_ERROR_RESILIENT_DEFAULT;
    cfg.g_lag_in_frames = 0;
    cfg.kf_mode = VPX_KF_AUTO;
    cfg.kf_max_dist = fps * 2;

    if (vpx_codec_enc_init(&enc->codec, vpx_codec_vp8_cx(), &cfg, 0) != VPX_CODEC_OK) {
        free(enc);
        return NULL;
    }

    vpx_codec_control(&enc->codec, VP8E_SET_CPUUSED, 8);
    vpx_codec_control(&enc->codec, VP8E_SET_NOISE_SENSITIVITY, 0);

    if (!vpx_img_alloc(&enc->raw, VPX_IMG_FMT_I420, width, height, 16)) {
        vpx_codec_destroy(&enc->codec);
        free(enc);
        return NULL;
    }

    enc->initialized = 1;
    return enc;
}

static void vp8_destroy(vp8_encoder_t* enc) {
    if (!enc) return;
    if (enc->initialized) {
        vpx_img_free(&enc->raw);
        vpx_codec_destroy(&enc->codec);
    }
    free(enc);
}

static int vp8_set_bitrate(vp8_encoder_t* enc, int bitrate) {
    vpx_codec_enc_cfg_t cfg = *enc->codec.config.enc;
    cfg.rc_target_bitrate = bitrate;
    if (vpx_codec_enc_config_set(&enc->codec, &cfg) != VPX_CODEC_OK) {
        return -1;
    }
    enc->bitrate = bitrate;
    return 0;
}

// vp8_fill_raw stages a packed I420 frame into the codec's image. The image
// rows are allocated at an aligned stride that can be wider than the frame,
// so each plane is copied row by row.
static void vp8_fill_raw(vp8_encoder_t* enc, const unsigned char* i420) {
    int w = enc->width, h = enc->height;
    int cw = w / 2, ch = h / 2;
    int r;

    const unsigned char* src = i420;
    unsigned char* dst = enc->raw.planes[VPX_PLANE_Y];
    int stride = enc->raw.stride[VPX_PLANE_Y];
    for (r = 0; r < h; r++) {
        memcpy(dst + (size_t)r * stride, src + (size_t)r * w, w);
    }

    src += (size_t)w * h;
    dst = enc->raw.planes[VPX_PLANE_U];
    stride = enc->raw.stride[VPX_PLANE_U];
    for (r = 0; r < ch; r++) {
        memcpy(dst + (size_t)r * stride, src + (size_t)r * cw, cw);
    }

    src += (size_t)cw * ch;
    dst = enc->raw.planes[VPX_PLANE_V];
    stride = enc->raw.stride[VPX_PLANE_V];
    for (r = 0; r < ch; r++) {
        memcpy(dst + (size_t)r * stride, src + (size_t)r * cw, cw);
    }
}

// vp8_read_raw_row copies one row of the staged image back out, at the
// plane's natural width.
static void vp8_read_raw_row(vp8_encoder_t* enc, int plane, int row, unsigned char* out) {
    int w = plane == VPX_PLANE_Y ? enc->width : enc->width / 2;
    memcpy(out, enc->raw.planes[plane] + (size_t)row * enc->raw.stride[plane], w);
}

// vp8_encode returns the encoded size, 0 when the encoder produced no
// packet for this frame, or -1 on error.
static int vp8_encode(vp8_encoder_t* enc, const unsigned char* i420,
                      int force_keyframe, unsigned char* out, int out_cap) {
    vp8_fill_raw(enc, i420);

    vpx_enc_frame_flags_t flags = force_keyframe ? VPX_EFLAG_FORCE_KF : 0;
    if (vpx_codec_encode(&enc->codec, &enc->raw, enc->frame_count++, 1,
                         flags, VPX_DL_REALTIME) != VPX_CODEC_OK) {
        return -1;
    }

    int written = 0;
    vpx_codec_iter_t iter = NULL;
    const vpx_codec_cx_pkt_t* pkt;
    while ((pkt = vpx_codec_get_cx_data(&enc->codec, &iter)) != NULL) {
        if (pkt->kind != VPX_CODEC_CX_FRAME_PKT) continue;
        if (written + (int)pkt->data.frame.sz > out_cap) return -1;
        memcpy(out + written, pkt->data.frame.buf, pkt->data.frame.sz);
        written += pkt->data.frame.sz;
    }
    return written;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
)

// VP8Encoder wraps a libvpx realtime encoder. Bitrate changes apply from the
// next frame; a resolution change reinitializes the codec, which also yields
// the keyframe the viewer needs to pick up the new size.
type VP8Encoder struct {
	mu            sync.Mutex
	enc           *C.vp8_encoder_t
	width, height int
	fps           int
	bitrateKbps   int
	forceKeyframe bool
	out           []byte
	closed        bool
}

// NewVP8Encoder creates an encoder sized to a quality profile.
func NewVP8Encoder(quality domain.QualityProfile) (*VP8Encoder, error) {
	w, h := quality.Width&^1, quality.Height&^1
	enc := C.vp8_create(C.int(w), C.int(h), C.int(quality.FrameRate), C.int(quality.BitrateKbps))
	if enc == nil {
		return nil, fmt.Errorf("libvpx encoder init failed for %dx%d", w, h)
	}
	return &VP8Encoder{
		enc:         enc,
		width:       w,
		height:      h,
		fps:         quality.FrameRate,
		bitrateKbps: quality.BitrateKbps,
		out:         make([]byte, w*h*4),
	}, nil
}

// Encode compresses one I420 frame. A nil payload with nil error means the
// encoder buffered the frame without emitting a packet.
func (e *VP8Encoder) Encode(frame *ports.VideoFrame) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("encoder closed")
	}

	if frame.Width != e.width || frame.Height != e.height {
		if err := e.reinitLocked(frame.Width, frame.Height); err != nil {
			return nil, err
		}
	}

	force := C.int(0)
	if e.forceKeyframe {
		force = 1
		e.forceKeyframe = false
	}

	n := C.vp8_encode(e.enc,
		(*C.uchar)(unsafe.Pointer(&frame.I420[0])),
		force,
		(*C.uchar)(unsafe.Pointer(&e.out[0])),
		C.int(len(e.out)),
	)
	if n < 0 {
		return nil, fmt.Errorf("vp8 encode failed for %dx%d frame", frame.Width, frame.Height)
	}
	if n == 0 {
		return nil, nil
	}
	payload := make([]byte, int(n))
	copy(payload, e.out[:int(n)])
	return payload, nil
}

// SetBitrate retargets the rate controller without reinitializing the codec.
func (e *VP8Encoder) SetBitrate(kbps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("encoder closed")
	}
	if kbps == e.bitrateKbps {
		return nil
	}
	if C.vp8_set_bitrate(e.enc, C.int(kbps)) != 0 {
		return fmt.Errorf("vp8 bitrate update to %d kbps failed", kbps)
	}
	e.bitrateKbps = kbps
	return nil
}

// ForceKeyframe flags the next frame as a keyframe, used when the viewer
// reports picture loss.
func (e *VP8Encoder) ForceKeyframe() {
	e.mu.Lock()
	e.forceKeyframe = true
	e.mu.Unlock()
}

// Close releases the codec. Idempotent.
func (e *VP8Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	C.vp8_destroy(e.enc)
	e.enc = nil
	return nil
}

// rawRow copies one row of the staged libvpx image so tests can verify the
// plane copy against the source frame. Plane 0 is luma, 1 and 2 chroma.
func (e *VP8Encoder) rawRow(plane, row int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	width := e.width
	if plane > 0 {
		width /= 2
	}
	out := make([]byte, width)
	C.vp8_read_raw_row(e.enc, C.int(plane), C.int(row), (*C.uchar)(unsafe.Pointer(&out[0])))
	return out
}

func (e *VP8Encoder) reinitLocked(width, height int) error {
	enc := C.vp8_create(C.int(width), C.int(height), C.int(e.fps), C.int(e.bitrateKbps))
	if enc == nil {
		return fmt.Errorf("libvpx encoder reinit failed for %dx%d", width, height)
	}
	C.vp8_destroy(e.enc)
	e.enc = enc
	e.width = width
	e.height = height
	if cap(e.out) < width*height*4 {
		e.out = make([]byte, width*height*4)
	}
	return nil
}
