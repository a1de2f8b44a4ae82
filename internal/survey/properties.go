package survey

import (
	"strconv"
	"strings"
)

// ParseProperties parses a HiPS properties document: plain text lines
// of "key = value" (or "key=value"), comments prefixed with '#'.
func ParseProperties(data string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func (s *Survey) applyProperties(props map[string]string) {
	s.properties = props
	for name, value := range props {
		switch name {
		case "hips_order":
			if n, err := strconv.Atoi(value); err == nil {
				s.order = n
			}
		case "hips_order_min":
			if n, err := strconv.Atoi(value); err == nil {
				s.orderMin = n
			}
		case "hips_tile_width":
			if n, err := strconv.Atoi(value); err == nil {
				s.tileWidth = n
			}
		case "hips_release_date":
			s.release = ParseDate(value)
		case "hips_tile_format":
			switch {
			case strings.Contains(value, "webp"):
				s.ext = "webp"
			case strings.Contains(value, "jpeg"):
				s.ext = "jpg"
			case strings.Contains(value, "png"):
				s.ext = "png"
			case strings.Contains(value, "eph"):
				s.ext = "eph"
				s.allsky.notAvailable = true
			default:
				s.logger.Warn("unknown hips tile format", "survey", s.url, "format", value)
			}
			// TODO: honor hips_service_url. Disabled because some
			// surveys advertise a URL that switches the protocol from
			// https to http, and it is unclear whether the key is
			// normative or a hint.
		}
	}
}
