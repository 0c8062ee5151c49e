package detector

// anchor is an SSD anchor center in input-normalized space. Anchors use a
// fixed unit size, so regressor offsets only need the input scale.
type anchor struct {
	X, Y float32
}

// anchorConfig mirrors the SSD anchor generator options of the short-range
// face detector
type anchorConfig struct {
	inputSize      int
	strides        []int
	anchorsPerCell int // per layer: aspect ratio 1.0 plus the interpolated scale
	offset         float32
}

var shortRangeAnchors = anchorConfig{
	inputSize:      128,
	strides:        []int{8, 16, 16, 16},
	anchorsPerCell: 2,
	offset:         0.5,
}

// generate lays anchors out in output order: by layer group, then row,
// column and anchor. Consecutive layers sharing a stride are merged into one
// grid with their anchors stacked per cell.
func (c anchorConfig) generate() []anchor {
	var anchors []anchor
	for layer := 0; layer < len(c.strides); {
		stride := c.strides[layer]
		perCell := 0
		for layer < len(c.strides) && c.strides[layer] == stride {
			perCell += c.anchorsPerCell
			layer++
		}

		fm := (c.inputSize + stride - 1) / stride
		for y := 0; y < fm; y++ {
			for x := 0; x < fm; x++ {
				cx := (float32(x) + c.offset) / float32(fm)
				cy := (float32(y) + c.offset) / float32(fm)
				for a := 0; a < perCell; a++ {
					anchors = append(anchors, anchor{X: cx, Y: cy})
				}
			}
		}
	}
	return anchors
}
