package preprocess

import "image"

// Element is a tensor element type produced from pixels
type Element interface {
	~float32 | ~uint8
}

// Normalization maps an 8-bit channel value v to (v - Mean) / Std
type Normalization struct {
	Mean, Std float32
}

var (
	// Raw keeps 0..255
	Raw = Normalization{Mean: 0, Std: 1}
	// UnitRange maps to [0,1]
	UnitRange = Normalization{Mean: 0, Std: 255}
	// SignedRange maps to [-1,1]
	SignedRange = Normalization{Mean: 127.5, Std: 127.5}
)

func (n Normalization) apply(v uint8) float32 {
	return (float32(v) - n.Mean) / n.Std
}

// ToNHWC writes img as RGB interleaved (1, H, W, 3) into dst
func ToNHWC[T Element](img *image.NRGBA, dst []T, norm Normalization) {
	b := img.Bounds()
	i := 0
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			px := row[x*4:]
			dst[i] = T(norm.apply(px[0]))
			dst[i+1] = T(norm.apply(px[1]))
			dst[i+2] = T(norm.apply(px[2]))
			i += 3
		}
	}
}
