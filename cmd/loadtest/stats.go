package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"
)

// Stats accumulates request outcomes from all workers.
type Stats struct {
	mu          sync.Mutex
	total       int64
	errors      int64
	cacheHits   int64
	latencies   []time.Duration
	byKind      map[string]int64
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		byKind:      make(map[string]int64),
		statusCodes: make(map[int]int64),
	}
}

// Record adds one request. Transport errors count as errors without a
// latency sample.
func (s *Stats) Record(kind string, d time.Duration, status int, cacheHit bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byKind[kind]++
	if err != nil {
		s.errors++
		return
	}
	if status < 200 || status >= 300 {
		s.errors++
	}
	if cacheHit {
		s.cacheHits++
	}
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
}

// Report is a summary of a finished run.
type Report struct {
	Total       int64
	Errors      int64
	CacheHits   int64
	RPS         float64
	Min, Avg    time.Duration
	P50, P90    time.Duration
	P95, P99    time.Duration
	Max         time.Duration
	StdDev      time.Duration
	ByKind      map[string]int64
	StatusCodes map[int]int64
}

func (s *Stats) Report(elapsed time.Duration) Report {
	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	r := Report{
		Total:       s.total,
		Errors:      s.errors,
		CacheHits:   s.cacheHits,
		ByKind:      make(map[string]int64, len(s.byKind)),
		StatusCodes: make(map[int]int64, len(s.statusCodes)),
	}
	for k, v := range s.byKind {
		r.ByKind[k] = v
	}
	for k, v := range s.statusCodes {
		r.StatusCodes[k] = v
	}
	s.mu.Unlock()

	if elapsed > 0 {
		r.RPS = float64(r.Total) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return r
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	r.Avg = sum / time.Duration(len(latencies))
	r.Min = latencies[0]
	r.Max = latencies[len(latencies)-1]
	r.P50 = percentile(latencies, 50)
	r.P90 = percentile(latencies, 90)
	r.P95 = percentile(latencies, 95)
	r.P99 = percentile(latencies, 99)

	var sumSquared float64
	for _, l := range latencies {
		diff := float64(l) - float64(r.Avg)
		sumSquared += diff * diff
	}
	r.StdDev = time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
	return r
}

func (r Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", r.Total)
	fmt.Fprintf(w, "Errors:          %d\n", r.Errors)
	if r.Total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(r.Errors)/float64(r.Total)*100)
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(r.CacheHits)/float64(r.Total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", r.RPS)
	}

	if r.Max > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", r.Min)
		fmt.Fprintf(w, "Avg:    %s\n", r.Avg)
		fmt.Fprintf(w, "P50:    %s\n", r.P50)
		fmt.Fprintf(w, "P90:    %s\n", r.P90)
		fmt.Fprintf(w, "P95:    %s\n", r.P95)
		fmt.Fprintf(w, "P99:    %s\n", r.P99)
		fmt.Fprintf(w, "Max:    %s\n", r.Max)
		fmt.Fprintf(w, "StdDev: %s\n", r.StdDev)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Requests By Endpoint ===")
	kinds := make([]string, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-12s %d\n", k, r.ByKind[k])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, r.StatusCodes[code])
	}
}

// percentile returns the nearest-rank percentile of sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// fetch performs a GET and reports the status and the service's cache_hit
// flag.
func fetch(ctx context.Context, client *http.Client, rawURL string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body.CacheHit, nil
}
