package axdr

import "time"

func mustTime() time.Time {
	return time.Date(2025, 7, 4, 13, 15, 0, 0, time.FixedZone("CEST", 2*3600))
}
