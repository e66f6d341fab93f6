// Package exiftest builds small JPEG fixtures with controlled EXIF content.
package exiftest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

// TIFF field types used by the fixtures.
const (
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeUndefined = 7
)

const (
	tagOrientation      = 0x0112
	tagExifIFDPointer   = 0x8769
	tagExifVersion      = 0x9000
	tagDateTimeOriginal = 0x9003
)

var le = binary.LittleEndian

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

// PlainJPEG returns an 8x8 JPEG without any APP1 segment.
func PlainJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEGWithDateTimeOriginal returns a JPEG whose Exif sub-IFD carries
// DateTimeOriginal = value, e.g. "2024:03:01 10:00:00".
func JPEGWithDateTimeOriginal(value string) []byte {
	ascii := append([]byte(value), 0)
	return withExif(
		[]entry{{tag: tagOrientation, typ: typeShort, count: 1, value: u16(1)}},
		[]entry{{tag: tagDateTimeOriginal, typ: typeASCII, count: uint32(len(ascii)), value: ascii}},
	)
}

// JPEGWithoutDateTimeOriginal returns a JPEG with an Exif sub-IFD that lacks DateTimeOriginal.
func JPEGWithoutDateTimeOriginal() []byte {
	return withExif(
		[]entry{{tag: tagOrientation, typ: typeShort, count: 1, value: u16(1)}},
		[]entry{{tag: tagExifVersion, typ: typeUndefined, count: 4, value: []byte("0230")}},
	)
}

// JPEGWithoutExifIFD returns a JPEG with an EXIF APP1 segment whose IFD0 has
// no pointer to an Exif sub-IFD.
func JPEGWithoutExifIFD() []byte {
	return withExif(
		[]entry{{tag: tagOrientation, typ: typeShort, count: 1, value: u16(1)}},
		nil,
	)
}

// ArithmeticJPEGWithDateTimeOriginal is JPEGWithDateTimeOriginal with its
// baseline SOF0 frame header relabelled SOF9 (arithmetic coding). The image
// data is no longer decodable by image/jpeg; the EXIF segment is unchanged.
func ArithmeticJPEGWithDateTimeOriginal(value string) []byte {
	data := JPEGWithDateTimeOriginal(value)
	app1End := 4 + int(binary.BigEndian.Uint16(data[4:6]))
	sof := bytes.Index(data[app1End:], []byte{0xFF, 0xC0})
	if sof < 0 {
		panic("exiftest: encoder output has no SOF0 marker")
	}
	data[app1End+sof+1] = 0xC9
	return data
}

// WriteFile writes content to dir/name on the real filesystem and returns the path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", path, err)
	}
	return path
}

// WriteFs writes content to dir/name on fsys and returns the path.
func WriteFs(t *testing.T, fsys afero.Fs, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := afero.WriteFile(fsys, path, content, 0644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", path, err)
	}
	return path
}

// withExif splices an APP1 EXIF segment right after the JPEG SOI marker.
func withExif(ifd0, exifIFD []entry) []byte {
	tiff := buildTIFF(ifd0, exifIFD)
	payload := append([]byte("Exif\x00\x00"), tiff...)

	var seg bytes.Buffer
	seg.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&seg, binary.BigEndian, uint16(len(payload)+2))
	seg.Write(payload)

	plain := PlainJPEG()
	out := make([]byte, 0, len(plain)+seg.Len())
	out = append(out, plain[:2]...)
	out = append(out, seg.Bytes()...)
	out = append(out, plain[2:]...)
	return out
}

func buildTIFF(ifd0, exifIFD []entry) []byte {
	const ifd0Offset = 8

	var header bytes.Buffer
	header.WriteString("II")
	_ = binary.Write(&header, le, uint16(42))
	_ = binary.Write(&header, le, uint32(ifd0Offset))

	if exifIFD == nil {
		return append(header.Bytes(), encodeIFD(ifd0, ifd0Offset)...)
	}

	// The pointer value is inline, so IFD0's size does not depend on it.
	withPointer := append(append([]entry{}, ifd0...), entry{tag: tagExifIFDPointer, typ: typeLong, count: 1, value: u32(0)})
	exifOffset := uint32(ifd0Offset + len(encodeIFD(withPointer, ifd0Offset)))
	withPointer[len(withPointer)-1].value = u32(exifOffset)

	out := append(header.Bytes(), encodeIFD(withPointer, ifd0Offset)...)
	return append(out, encodeIFD(exifIFD, exifOffset)...)
}

// encodeIFD lays out one IFD at offset followed by its out-of-line values.
func encodeIFD(entries []entry, offset uint32) []byte {
	var head, data bytes.Buffer
	dataOffset := offset + 2 + 12*uint32(len(entries)) + 4

	_ = binary.Write(&head, le, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&head, le, e.tag)
		_ = binary.Write(&head, le, e.typ)
		_ = binary.Write(&head, le, e.count)
		if len(e.value) <= 4 {
			inline := make([]byte, 4)
			copy(inline, e.value)
			head.Write(inline)
			continue
		}
		_ = binary.Write(&head, le, dataOffset+uint32(data.Len()))
		data.Write(e.value)
		if data.Len()%2 == 1 {
			data.WriteByte(0)
		}
	}
	_ = binary.Write(&head, le, uint32(0))

	return append(head.Bytes(), data.Bytes()...)
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	le.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	le.PutUint32(b, v)
	return b
}
