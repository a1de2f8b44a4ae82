package survey

import (
	"fmt"
	"time"
)

// mjdUnixEpoch is the MJD of 1970-01-01T00:00Z.
const mjdUnixEpoch = 40587.0

// ParseDate parses a date in the format used by HiPS property files,
// like "2019-01-02T15:27Z", and returns it as MJD days. Seconds, if
// present, are ignored. Any parse failure yields 0, meaning "unknown
// release date" (and therefore no cache busting).
func ParseDate(str string) float64 {
	var y, m, d, hr, mn int
	n, _ := fmt.Sscanf(str, "%d-%d-%dT%d:%dZ", &y, &m, &d, &hr, &mn)
	if n != 5 {
		return 0
	}
	t := time.Date(y, time.Month(m), d, hr, mn, 0, 0, time.UTC)
	return float64(t.Unix())/86400.0 + mjdUnixEpoch
}
