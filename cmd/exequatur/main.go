// Command exequatur verifies a licensed professional against the public
// registry and prints the verdict as JSON.
//
// Usage:
//
//	exequatur -id 00112345678
//	exequatur -id 00112345678 -name "Juan Pérez"
//	exequatur -name "Juan Pérez" -source browser
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/regsalud/exequatur/browser"
	"github.com/regsalud/exequatur/httpcache"
	"github.com/regsalud/exequatur/postback"
	"github.com/regsalud/exequatur/registry"
	"github.com/regsalud/exequatur/verify"
)

const defaultEntryURL = "https://sns.gob.do/herramientas-de-consulta/consulta-de-exequatur/"

func main() {
	idNumber := flag.String("id", "", "national identity number to verify")
	fullName := flag.String("name", "", "full name to verify")
	source := flag.String("source", "postback", "retrieval strategy: postback or browser")
	entryURL := flag.String("url", defaultEntryURL, "registry search page URL")
	threshold := flag.Float64("threshold", verify.DefaultThreshold, "minimum name score that counts as verified")
	suggestAt := flag.Float64("suggest-at", verify.DefaultSuggestAt, "minimum name score reported as a near-miss suggestion")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall verification timeout")
	debug := flag.Bool("debug", false, "enable debug logging")
	noCache := flag.Bool("no-cache", false, "disable caching of the registry frame resolution")
	cacheTTL := flag.Duration("cache-ttl", 7*24*time.Hour, "cache time-to-live for the frame resolution")
	strictTLS := flag.Bool("strict-tls", false, "enforce TLS certificate validation against the registry host")
	flag.Parse()

	if *idNumber == "" && *fullName == "" {
		fmt.Fprintln(os.Stderr, "Usage: exequatur [options]")
		fmt.Fprintln(os.Stderr, "\nAt least one of -id or -name is required.")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	src, cleanup, err := buildSource(*source, *entryURL, *noCache, *cacheTTL, *strictTLS, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	verifier, err := verify.New(src,
		verify.WithThreshold(*threshold),
		verify.WithSuggestAt(*suggestAt),
		verify.WithTimeout(*timeout),
		verify.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err) //nolint:gocritic // exitAfterDefer is acceptable in main
		os.Exit(1)
	}

	verdict, err := verifier.Verify(context.Background(), registry.NewQuery(*idNumber, *fullName))
	if err != nil {
		logger.Debug("verification did not complete", "error", err)
	}
	if outErr := outputJSON(verdict); outErr != nil {
		fmt.Fprintf(os.Stderr, "Output error: %v\n", outErr)
		os.Exit(1)
	}
	if !verdict.OK {
		os.Exit(1)
	}
}

func buildSource(kind, entryURL string, noCache bool, cacheTTL time.Duration, strictTLS bool, logger *slog.Logger) (registry.Source, func(), error) {
	cleanup := func() {}

	switch kind {
	case "browser":
		src, err := browser.New(entryURL, browser.WithLogger(logger))
		return src, cleanup, err
	case "postback":
		opts := []postback.Option{postback.WithLogger(logger)}
		if strictTLS {
			opts = append(opts, postback.WithStrictTLS())
		}
		if !noCache {
			cache, err := httpcache.New(cacheTTL)
			if err != nil {
				logger.Warn("failed to initialize cache, continuing without cache", "error", err)
			} else {
				cleanup = func() {
					if err := cache.Close(); err != nil {
						logger.Warn("failed to close cache", "error", err)
					}
				}
				opts = append(opts, postback.WithCache(cache))
			}
		}
		src, err := postback.New(entryURL, opts...)
		return src, cleanup, err
	default:
		return nil, cleanup, fmt.Errorf("unknown source %q (want postback or browser)", kind)
	}
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
