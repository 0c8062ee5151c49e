package main

import "time"

const fallbackFPS = 30

// frameInterval is how long one frame lasts at the first positive rate given
func frameInterval(rates ...int) time.Duration {
	for _, fps := range rates {
		if fps > 0 {
			return time.Second / time.Duration(fps)
		}
	}
	return time.Second / fallbackFPS
}
