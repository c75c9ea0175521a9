package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/events"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

var loadVocabulary = []string{
	"cats", "dogs", "pets", "training", "food", "health", "puppy", "kitten",
	"grooming", "veterinary", "adoption", "shelter", "toys", "walks", "behavior",
	"nutrition", "allergies", "breeds", "litter", "leash", "vaccines", "fleas",
}

type loadConfig struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	sources     int
	targets     int
	words       int
	seed        uint64
}

// loadStats is shared by the load workers.
type loadStats struct {
	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	mu        sync.Mutex
	latencies []float64
	codes     map[int]int
}

func newLoadStats() *loadStats {
	return &loadStats{codes: make(map[int]int)}
}

func (s *loadStats) record(d time.Duration, code int, err error) {
	s.total.Add(1)
	if err != nil || code < 200 || code >= 300 {
		s.failed.Add(1)
	} else {
		s.succeeded.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, float64(d)/float64(time.Millisecond))
	s.codes[code]++
	s.mu.Unlock()
}

func newLoadTestCmd() *cobra.Command {
	lc := &loadConfig{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive a running server with synthetic match requests",
		Args:  cobra.NoArgs,
		// The load generator needs no service configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Link Suggestion Load Test ===")
			fmt.Fprintf(out, "Target:      %s\n", lc.baseURL)
			fmt.Fprintf(out, "Concurrency: %d\n", lc.concurrency)
			fmt.Fprintf(out, "Duration:    %s\n", lc.duration)
			fmt.Fprintf(out, "Batch:       %d sources x %d targets\n\n", lc.sources, lc.targets)

			stats := runLoad(cmd.Context(), lc)
			return printLoadReport(out, stats, lc.duration)
		},
	}
	cmd.Flags().StringVar(&lc.baseURL, "url", "http://localhost:8080", "base URL of the link suggestion service")
	cmd.Flags().IntVar(&lc.concurrency, "concurrency", 4, "number of concurrent clients")
	cmd.Flags().DurationVar(&lc.duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().IntVar(&lc.sources, "sources", 20, "sources per request")
	cmd.Flags().IntVar(&lc.targets, "targets", 200, "targets per request")
	cmd.Flags().IntVar(&lc.words, "words", 40, "words per generated document")
	cmd.Flags().Uint64Var(&lc.seed, "seed", 1, "random seed for generated documents")
	return cmd
}

// syntheticRequest builds a request whose documents draw words from a small
// shared vocabulary so that most sources have candidates.
func syntheticRequest(rng *rand.Rand, sources, targets, words int) events.MatchRequest {
	doc := func(kind string, i int) model.Document {
		parts := make([]string, words)
		for j := range parts {
			parts[j] = loadVocabulary[rng.IntN(len(loadVocabulary))]
		}
		return model.Document{
			URL:  fmt.Sprintf("https://load.example/%s/%d", kind, i),
			Body: strings.Join(parts, " "),
		}
	}
	req := events.MatchRequest{
		Sources: make([]model.Document, sources),
		Targets: make([]model.Document, targets),
	}
	for i := range req.Sources {
		req.Sources[i] = doc("source", i)
	}
	for i := range req.Targets {
		req.Targets[i] = doc("target", i)
	}
	return req
}

func runLoad(parent context.Context, lc *loadConfig) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        lc.concurrency * 2,
			MaxIdleConnsPerHost: lc.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(parent, lc.duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < lc.concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(lc.seed, uint64(workerID)))
			for ctx.Err() == nil {
				body, err := json.Marshal(syntheticRequest(rng, lc.sources, lc.targets, lc.words))
				if err != nil {
					stats.record(0, 0, err)
					return
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, lc.baseURL+"/api/v1/match", bytes.NewReader(body))
				if err != nil {
					stats.record(0, 0, err)
					return
				}
				req.Header.Set("Content-Type", "application/json")

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(elapsed, 0, err)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, nil)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func printLoadReport(out io.Writer, stats *loadStats, duration time.Duration) error {
	total := stats.total.Load()
	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Requests:  %d\n", total)
	fmt.Fprintf(out, "Successful:      %d\n", stats.succeeded.Load())
	fmt.Fprintf(out, "Errors:          %d\n", stats.failed.Load())
	if total == 0 {
		return fmt.Errorf("no requests completed, is the service running?")
	}
	fmt.Fprintf(out, "Error Rate:      %.2f%%\n", float64(stats.failed.Load())/float64(total)*100)
	fmt.Fprintf(out, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())

	stats.mu.Lock()
	defer stats.mu.Unlock()
	if len(stats.latencies) > 0 {
		lat := append([]float64(nil), stats.latencies...)
		sort.Float64s(lat)
		mean, std := stat.MeanStdDev(lat, nil)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Latency (ms) ===")
		fmt.Fprintf(out, "Min:    %.1f\n", lat[0])
		fmt.Fprintf(out, "Avg:    %.1f\n", mean)
		for _, p := range []float64{0.5, 0.9, 0.95, 0.99} {
			fmt.Fprintf(out, "P%-5g %.1f\n", p*100, stat.Quantile(p, stat.Empirical, lat, nil))
		}
		fmt.Fprintf(out, "Max:    %.1f\n", lat[len(lat)-1])
		fmt.Fprintf(out, "StdDev: %.1f\n", std)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Status Codes ===")
	codes := make([]int, 0, len(stats.codes))
	for code := range stats.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "  %d: %d\n", code, stats.codes[code])
	}
	return nil
}
