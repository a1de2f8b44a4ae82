package survey

import "strings"

// ListEntry is one survey record from a HiPS-list document.
type ListEntry struct {
	ServiceURL  string
	ReleaseDate float64 // MJD, 0 if unknown
}

// ParseHiPSList parses a line-oriented HiPS-list document: "key = value"
// lines, '#' comments, blank lines separating survey records. A record
// is emitted when a blank line or the end of input follows a record
// that has a hips_service_url.
func ParseHiPSList(data string) []ListEntry {
	var out []ListEntry
	var cur ListEntry

	flush := func() {
		if cur.ServiceURL != "" {
			out = append(out, cur)
		}
		cur = ListEntry{}
	}

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == '=' || r == ' ' || r == '\t'
		})
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "hips_service_url":
			cur.ServiceURL = fields[1]
		case "hips_release_date":
			cur.ReleaseDate = ParseDate(fields[1])
		}
	}
	flush()
	return out
}
