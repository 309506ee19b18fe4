// Package image provides the bitmap, stream and codec types used to test
// page orientation, plus scan loading from disk.
package image

import (
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Scan is a page image loaded from disk.
type Scan struct {
	Path   string
	Image  image.Image
	Format Format
	DPI    float64 // From TIFF resolution tags; 0 if unknown
}

// Load reads and decodes the scan at path.
func Load(path string) (*Scan, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	scan := &Scan{Path: path, Image: img, Format: format}
	if format == FormatTIFF {
		if _, err := file.Seek(0, io.SeekStart); err == nil {
			if dpi, err := readTIFFDPI(file); err == nil {
				scan.DPI = dpi
			}
		}
	}
	return scan, nil
}

// Bitmap returns the scan as a PureBitmap.
func (s *Scan) Bitmap() *PureBitmap {
	return NewPureBitmap(s.Image)
}

// SupportedFormats returns the file extensions Load accepts.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg", ".bmp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// readTIFFDPI reads XResolution/YResolution/ResolutionUnit from the first IFD.
func readTIFFDPI(r io.ReadSeeker) (float64, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, err
	}

	var order binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("not a valid TIFF file")
	}

	if _, err := r.Seek(int64(order.Uint32(header[4:8])), io.SeekStart); err != nil {
		return 0, err
	}
	var numEntries uint16
	if err := binary.Read(r, order, &numEntries); err != nil {
		return 0, err
	}

	type rational struct{ offset uint32 }
	var xRes, yRes *rational
	var resUnit uint16 = 2 // inches

	entry := make([]byte, 12)
	for i := uint16(0); i < numEntries; i++ {
		if _, err := io.ReadFull(r, entry); err != nil {
			return 0, err
		}
		tag := order.Uint16(entry[0:2])
		fieldType := order.Uint16(entry[2:4])
		value := order.Uint32(entry[8:12])

		switch {
		case tag == 282 && fieldType == 5: // XResolution, RATIONAL
			xRes = &rational{value}
		case tag == 283 && fieldType == 5: // YResolution, RATIONAL
			yRes = &rational{value}
		case tag == 296 && fieldType == 3: // ResolutionUnit, SHORT
			// SHORT values are left-justified in the 4-byte field.
			resUnit = order.Uint16(entry[8:10])
		}
	}

	res := xRes
	if res == nil {
		res = yRes
	}
	if res == nil {
		return 0, fmt.Errorf("no resolution tags found")
	}

	if _, err := r.Seek(int64(res.offset), io.SeekStart); err != nil {
		return 0, err
	}
	var num, denom uint32
	if err := binary.Read(r, order, &num); err != nil {
		return 0, err
	}
	if err := binary.Read(r, order, &denom); err != nil {
		return 0, err
	}
	if num == 0 || denom == 0 {
		return 0, fmt.Errorf("DPI is zero")
	}

	dpi := float64(num) / float64(denom)
	if resUnit == 3 { // centimeters
		dpi *= 2.54
	}
	return dpi, nil
}
