package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var defaultBenchQueries = []string{
	"godfather",
	"title:star wars",
	"overview:gangsters",
	"genre:drama love",
	"space adventure year:1970..1990",
	"detective -comedy",
	`"new york"`,
	"war*",
	"date:19800101..19891231 robot",
	"family AND christmas",
}

type benchConfig struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Queries     []string
}

type benchStats struct {
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newBenchStats() *benchStats {
	return &benchStats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

func (s *benchStats) record(d time.Duration, code int, hit bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if code >= 200 && code < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	if hit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func newBenchCmd(g *globalFlags) *cobra.Command {
	cfg := benchConfig{}
	var queriesFile string
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load test a running searcher",
		Example: "searchctl bench --url http://localhost:8081 --concurrency 20 --duration 1m",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Queries = defaultBenchQueries
			if queriesFile != "" {
				q, err := readQueries(queriesFile)
				if err != nil {
					return err
				}
				cfg.Queries = q
			}
			if cfg.Concurrency < 1 {
				return fmt.Errorf("concurrency must be at least 1")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "target %s, %d workers for %s, %d queries\n", cfg.BaseURL, cfg.Concurrency, cfg.Duration, len(cfg.Queries))
			stats, err := runBench(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printBenchReport(out, stats, cfg.Duration)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:8081", "base URL of the searcher")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 10, "concurrent workers")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().IntVar(&cfg.Limit, "limit", 10, "results per query")
	cmd.Flags().StringVar(&queriesFile, "queries", "", "file with one query per line")
	return cmd
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s: no queries", path)
	}
	return queries, nil
}

func runBench(ctx context.Context, cfg benchConfig) (*benchStats, error) {
	stats := newBenchStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var g errgroup.Group
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				u := fmt.Sprintf("%s/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(cfg.Queries[i%len(cfg.Queries)]), cfg.Limit)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				d := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(d, 0, false, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(d, resp.StatusCode, resp.Header.Get("X-Cache") == "HIT", nil)
			}
			return nil
		})
	}
	return stats, g.Wait()
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func printBenchReport(out io.Writer, s *benchStats, duration time.Duration) {
	total, success, errs := s.total.Load(), s.success.Load(), s.errors.Load()
	fmt.Fprintf(out, "\nrequests  %d\nsuccess   %d\nerrors    %d\n", total, success, errs)
	if total > 0 {
		fmt.Fprintf(out, "err rate  %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Fprintf(out, "req/s     %.2f\n", float64(total)/duration.Seconds())
		fmt.Fprintf(out, "cache hit %.2f%%\n", float64(s.cacheHits.Load())/float64(total)*100)
	}

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintf(out, "\nmin %s  avg %s  p50 %s  p90 %s  p99 %s  max %s\n",
			latencies[0], sum/time.Duration(len(latencies)),
			percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99),
			latencies[len(latencies)-1])
	}
	slices.Sort(codes)
	for _, code := range codes {
		s.mu.Lock()
		n := s.codes[code]
		s.mu.Unlock()
		fmt.Fprintf(out, "status %d: %d\n", code, n)
	}
}
