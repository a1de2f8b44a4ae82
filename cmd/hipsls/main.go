// Command hipsls fetches a HiPS list document and prints the surveys
// it advertises, one per line with the release date when known.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/skyatlas/hipscache/internal/asset"
	"github.com/skyatlas/hipscache/internal/core/config"
	"github.com/skyatlas/hipscache/internal/logger"
	"github.com/skyatlas/hipscache/internal/survey"
)

func main() {
	cfg := config.FromEnv()
	listURL := flag.String("list", cfg.HiPSListURL, "HiPS list URL")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	if *listURL == "" {
		fmt.Fprintln(os.Stderr, "usage: hipsls -list <url> (or set HIPS_LIST_URL)")
		os.Exit(2)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		Component: "hipsls",
	}, os.Stderr)
	slogger := logger.NewSlog(&zl)

	f := asset.NewHTTP(slogger, cfg.FetchDoneSize, cfg.FetchDoneTTL,
		asset.WithUserAgent(cfg.UserAgent))

	deadline := time.Now().Add(*timeout)
	var data []byte
	var code int
	for {
		data, code = f.Fetch(*listURL, 0)
		if code != asset.StatusPending {
			break
		}
		if time.Now().After(deadline) {
			fmt.Fprintln(os.Stderr, "timed out fetching list")
			os.Exit(1)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if data == nil {
		fmt.Fprintf(os.Stderr, "fetch failed: status %d\n", code)
		os.Exit(1)
	}

	entries := survey.ParseHiPSList(string(data))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE URL\tRELEASE (MJD)")
	for _, e := range entries {
		if e.ReleaseDate > 0 {
			fmt.Fprintf(w, "%s\t%.5f\n", e.ServiceURL, e.ReleaseDate)
		} else {
			fmt.Fprintf(w, "%s\t-\n", e.ServiceURL)
		}
	}
	_ = w.Flush()
	fmt.Fprintf(os.Stderr, "%d surveys\n", len(entries))
}
