package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// PixelFormat is a V4L2 fourcc.
type PixelFormat uint32

const (
	// FormatYUYV is packed 4:2:2 YUV.
	FormatYUYV PixelFormat = 0x56595559
	// FormatMJPEG is motion JPEG.
	FormatMJPEG PixelFormat = 0x47504a4d
)

var (
	errShortFrame   = errors.New("frame too short")
	errUnknownFmt   = errors.New("unknown pixel format")
	errMissingScan  = errors.New("jpeg frame without start of scan")
	errNotYCbCrJPEG = errors.New("jpeg frame is not YCbCr")
)

// Supported reports whether frames of f can be decoded.
func (f PixelFormat) Supported() bool {
	return f == FormatYUYV || f == FormatMJPEG
}

//nolint:gochecknoglobals // Standard JPEG huffman tables.
var (
	dhtMarker = []byte{0xff, 0xc4}
	sosMarker = []byte{0xff, 0xda}
	dht       = []byte{1, 162, 0, 0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 1, 0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 16, 0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 125, 1, 2, 3, 0, 4, 17, 5, 18, 33, 49, 65, 6, 19, 81, 97, 7, 34, 113, 20, 50, 129, 145, 161, 8, 35, 66, 177, 193, 21, 82, 209, 240, 36, 51, 98, 114, 130, 9, 10, 22, 23, 24, 25, 26, 37, 38, 39, 40, 41, 42, 52, 53, 54, 55, 56, 57, 58, 67, 68, 69, 70, 71, 72, 73, 74, 83, 84, 85, 86, 87, 88, 89, 90, 99, 100, 101, 102, 103, 104, 105, 106, 115, 116, 117, 118, 119, 120, 121, 122, 131, 132, 133, 134, 135, 136, 137, 138, 146, 147, 148, 149, 150, 151, 152, 153, 154, 162, 163, 164, 165, 166, 167, 168, 169, 170, 178, 179, 180, 181, 182, 183, 184, 185, 186, 194, 195, 196, 197, 198, 199, 200, 201, 202, 210, 211, 212, 213, 214, 215, 216, 217, 218, 225, 226, 227, 228, 229, 230, 231, 232, 233, 234, 241, 242, 243, 244, 245, 246, 247, 248, 249, 250, 17, 0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 119, 0, 1, 2, 3, 17, 4, 5, 33, 49, 6, 18, 65, 81, 7, 97, 113, 19, 34, 50, 129, 8, 20, 66, 145, 161, 177, 193, 9, 35, 51, 82, 240, 21, 98, 114, 209, 10, 22, 36, 52, 225, 37, 241, 23, 24, 25, 26, 38, 39, 40, 41, 42, 53, 54, 55, 56, 57, 58, 67, 68, 69, 70, 71, 72, 73, 74, 83, 84, 85, 86, 87, 88, 89, 90, 99, 100, 101, 102, 103, 104, 105, 106, 115, 116, 117, 118, 119, 120, 121, 122, 130, 131, 132, 133, 134, 135, 136, 137, 138, 146, 147, 148, 149, 150, 151, 152, 153, 154, 162, 163, 164, 165, 166, 167, 168, 169, 170, 178, 179, 180, 181, 182, 183, 184, 185, 186, 194, 195, 196, 197, 198, 199, 200, 201, 202, 210, 211, 212, 213, 214, 215, 216, 217, 218, 226, 227, 228, 229, 230, 231, 232, 233, 234, 242, 243, 244, 245, 246, 247, 248, 249, 250}
)

// addMotionDHT inserts the default huffman tables motion JPEG frames omit.
func addMotionDHT(frame []byte) ([]byte, error) {
	if bytes.Contains(frame, dhtMarker) {
		return frame, nil
	}

	i := bytes.Index(frame, sosMarker)
	if i < 0 {
		return nil, errMissingScan
	}

	out := make([]byte, 0, len(frame)+len(dhtMarker)+len(dht))
	out = append(out, frame[:i]...)
	out = append(out, dhtMarker...)
	out = append(out, dht...)

	return append(out, frame[i:]...), nil
}

// decodeFrame converts a raw w x h frame to an image.
func decodeFrame(frame []byte, w, h int, format PixelFormat) (*image.YCbCr, error) {
	switch format {
	case FormatYUYV:
		if len(frame) < w*h*2 {
			return nil, fmt.Errorf("%w: %d bytes for %dx%d", errShortFrame, len(frame), w, h)
		}

		img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
		for i := range img.Cb {
			ii := i * 4
			img.Y[i*2] = frame[ii]
			img.Y[i*2+1] = frame[ii+2]
			img.Cb[i] = frame[ii+1]
			img.Cr[i] = frame[ii+3]
		}

		return img, nil
	case FormatMJPEG:
		full, err := addMotionDHT(frame)
		if err != nil {
			return nil, err
		}

		img, err := jpeg.Decode(bytes.NewReader(full))
		if err != nil {
			return nil, fmt.Errorf("decode mjpeg frame: %w", err)
		}

		yuv, ok := img.(*image.YCbCr)
		if !ok {
			return nil, errNotYCbCrJPEG
		}

		return yuv, nil
	default:
		return nil, fmt.Errorf("%w: %#x", errUnknownFmt, uint32(format))
	}
}
