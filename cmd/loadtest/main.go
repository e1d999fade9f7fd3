// Command loadtest drives the semantic search endpoints with concurrent
// workers and prints latency percentiles, status codes and the cache hit
// ratio reported by the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	BlogID      string
	PostIDs     []string
	Queries     []string
}

var defaultQueries = []string{
	"rust ownership borrow checker",
	"kubernetes deployment",
	"machine learning neural networks",
	"go concurrency channels",
	"database indexing performance",
	"react state management",
	"distributed systems consensus",
	"observability tracing metrics",
	"typescript generics",
	"postgres query planner",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the semantic search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "limit parameter sent with every query")
	blogID := flag.String("blog", "", "blog ID for blog-scoped search and related-post requests")
	postIDs := flag.String("posts", "", "comma-separated post IDs for related-post requests (requires -blog)")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Limit:       *limit,
		BlogID:      *blogID,
		Queries:     defaultQueries,
	}
	if *postIDs != "" {
		cfg.PostIDs = strings.Split(*postIDs, ",")
	}

	fmt.Println("=== Semantic Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Endpoints:   %s\n", strings.Join(requestKinds(cfg), ", "))
	fmt.Println()

	stats, err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	report := stats.Report(cfg.Duration)
	report.Print(os.Stdout)
	if report.Total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

// requestKinds lists the endpoints the configuration exercises.
func requestKinds(cfg Config) []string {
	kinds := []string{"search"}
	if cfg.BlogID != "" {
		kinds = append(kinds, "search_blog")
		if len(cfg.PostIDs) > 0 {
			kinds = append(kinds, "related")
		}
	}
	return kinds
}

// targetURL builds the n-th request of a worker, rotating through the
// configured endpoints, queries and posts.
func targetURL(cfg Config, n int) (kind, rawURL string) {
	kinds := requestKinds(cfg)
	kind = kinds[n%len(kinds)]
	query := cfg.Queries[n%len(cfg.Queries)]
	switch kind {
	case "search_blog":
		return kind, fmt.Sprintf("%s/api/v1/blogs/%s/semantic/search?q=%s&limit=%d",
			cfg.BaseURL, url.PathEscape(cfg.BlogID), url.QueryEscape(query), cfg.Limit)
	case "related":
		postID := cfg.PostIDs[n%len(cfg.PostIDs)]
		return kind, fmt.Sprintf("%s/api/v1/blogs/%s/posts/%s/related?limit=%d",
			cfg.BaseURL, url.PathEscape(cfg.BlogID), url.PathEscape(postID), cfg.Limit)
	default:
		return kind, fmt.Sprintf("%s/api/v1/semantic/search?q=%s&limit=%d",
			cfg.BaseURL, url.QueryEscape(query), cfg.Limit)
	}
}

func run(cfg Config) (*Stats, error) {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for n := w; ctx.Err() == nil; n++ {
				kind, rawURL := targetURL(cfg, n)
				start := time.Now()
				status, cacheHit, err := fetch(ctx, client, rawURL)
				if ctx.Err() != nil {
					return nil
				}
				stats.Record(kind, time.Since(start), status, cacheHit, err)
			}
			return nil
		})
	}

	fmt.Print("Running")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	err := g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats, err
}
