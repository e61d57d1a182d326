package imagemeta

import (
	"image"

	"github.com/disintegration/imaging"
)

// OrientationReader reads the display orientation recorded in an image file.
type OrientationReader interface {
	Orientation(filePath string) (Orientation, error)
	SupportsFile(filePath string) bool
}

// Orientation is the EXIF orientation tag value (1-8).
type Orientation int

const (
	OrientationNormal Orientation = iota + 1
	OrientationFlipH
	OrientationRotate180
	OrientationFlipV
	OrientationTranspose
	OrientationRotate90CW
	OrientationTransverse
	OrientationRotate90CCW
)

// Valid reports whether o is one of the eight defined orientations.
func (o Orientation) Valid() bool {
	return o >= OrientationNormal && o <= OrientationRotate90CCW
}

// String returns a human-readable description of the orientation.
func (o Orientation) String() string {
	switch o {
	case OrientationNormal:
		return "normal"
	case OrientationFlipH:
		return "flip horizontal"
	case OrientationRotate180:
		return "rotate 180"
	case OrientationFlipV:
		return "flip vertical"
	case OrientationTranspose:
		return "transpose"
	case OrientationRotate90CW:
		return "rotate 90 cw"
	case OrientationTransverse:
		return "transverse"
	case OrientationRotate90CCW:
		return "rotate 90 ccw"
	default:
		return "unknown"
	}
}

// Apply bakes the orientation into the pixels so the image displays upright
// once the EXIF block is gone. Normal or unknown orientations return img
// unchanged.
func Apply(img image.Image, o Orientation) image.Image {
	switch o {
	case OrientationFlipH:
		return imaging.FlipH(img)
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationFlipV:
		return imaging.FlipV(img)
	case OrientationTranspose:
		return imaging.Transpose(img)
	case OrientationRotate90CW:
		// imaging rotates counter-clockwise.
		return imaging.Rotate270(img)
	case OrientationTransverse:
		return imaging.Transverse(img)
	case OrientationRotate90CCW:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
