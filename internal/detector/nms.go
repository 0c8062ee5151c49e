package detector

import "sort"

// nms performs Non-Maximum Suppression on detections. The result is ordered
// by score, highest first.
func nms(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) == 0 {
		return dets
	}

	// Sort by score (descending)
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Score > dets[j].Score
	})

	keep := make([]bool, len(dets))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(dets); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(dets); j++ {
			if !keep[j] {
				continue
			}
			if dets[i].Rect.IoU(dets[j].Rect) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Detection, 0, len(dets))
	for i, det := range dets {
		if keep[i] {
			result = append(result, det)
		}
	}

	return result
}
