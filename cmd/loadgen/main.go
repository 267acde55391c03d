// loadgen is a small companion load driver: it fires concurrent requests at
// an ember instance's /fibonacci endpoint and prints a latency summary.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:5000", "Base URL of the ember service")
	requests := flag.Int("requests", 100, "Total number of requests to send")
	concurrency := flag.Int("concurrency", 8, "Number of concurrent workers")
	iterations := flag.Int("iterations", -1, "Iteration count override (negative uses the service default)")
	flag.Parse()

	url := *addr + "/fibonacci"
	if *iterations >= 0 {
		url = fmt.Sprintf("%s?iterations=%d", url, *iterations)
	}

	client := &http.Client{Timeout: 5 * time.Minute}

	jobs := make(chan int)
	latencies := make([]time.Duration, 0, *requests)
	var failures int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				start := time.Now()
				resp, err := client.Get(url)
				elapsed := time.Since(start)

				mu.Lock()
				if err != nil || resp.StatusCode != http.StatusOK {
					failures++
				} else {
					latencies = append(latencies, elapsed)
				}
				mu.Unlock()

				if resp != nil {
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
				}
			}
		}()
	}

	log.Printf("Sending %d requests to %s with %d workers", *requests, url, *concurrency)
	started := time.Now()
	for i := 0; i < *requests; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	total := time.Since(started)

	if len(latencies) == 0 {
		log.Fatalf("All %d requests failed", *requests)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	log.Printf("Done in %s: %d ok, %d failed", total, len(latencies), failures)
	log.Printf("Latency avg=%s p50=%s p95=%s max=%s",
		sum/time.Duration(len(latencies)),
		latencies[len(latencies)/2],
		latencies[len(latencies)*95/100],
		latencies[len(latencies)-1])
}
