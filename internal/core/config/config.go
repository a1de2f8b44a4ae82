package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr          string
	LogLevel      string
	LogConsole    bool
	LogSampleN    int
	CacheBudget   int64
	Workers       int
	FetchDoneSize int
	FetchDoneTTL  time.Duration
	FetchTimeout  time.Duration
	UserAgent     string
	FrameInterval time.Duration
	HiPSListURL   string
	SurveyURLs    []string
	SurveyLabels  map[string]string
}

func FromEnv() Config {
	budget := getint64("CACHE_BUDGET", 256<<20)
	if budget < 1<<20 {
		budget = 1 << 20
	}

	return Config{
		Addr:          getenv("ADDR", ":8090"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogConsole:    getbool("LOG_CONSOLE", false),
		LogSampleN:    getint("LOG_SAMPLE_N", 0),
		CacheBudget:   budget,
		Workers:       getint("WORKERS", 0),
		FetchDoneSize: getint("FETCH_DONE_SIZE", 4096),
		FetchDoneTTL:  getduration("FETCH_DONE_TTL", 30*time.Second),
		FetchTimeout:  getduration("FETCH_TIMEOUT", 20*time.Second),
		UserAgent:     getenv("USER_AGENT", "hipscache/1.0"),
		FrameInterval: getduration("FRAME_INTERVAL", 16*time.Millisecond),
		HiPSListURL:   getenv("HIPS_LIST_URL", ""),
		SurveyURLs:    parseList(getenv("SURVEY_URLS", "")),
		SurveyLabels:  parseStringMap(getenv("SURVEY_LABELS", "")),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a,b,c" into a slice, skipping empties
func parseList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parse "url=DSS2,other=Label" into map
func parseStringMap(s string) map[string]string {
	out := map[string]string{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
