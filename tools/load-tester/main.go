package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func main() {
	targetURL := flag.String("url", "http://localhost:8080/data/patients", "Target data endpoint")
	tenantID := flag.String("tenant", "", "Tenant id sent in the X-Tenant-Id header")
	operation := flag.String("op", "insertOne", "Operation to issue")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 200, "Requests per second limit")
	flag.Parse()

	if *tenantID == "" {
		log.Fatal("a -tenant id is required")
	}

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Tenant: %s, Operation: %s, Concurrency: %d, Duration: %s, RPS: %d",
		*tenantID, *operation, *concurrency, *duration, *rps)

	var wg sync.WaitGroup
	var successCount, rateLimitedCount, quotaCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 50) // Allow bursts up to 50

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
					limiter.Wait(ctx)

					payload := fmt.Sprintf(`{"operation": %q, "document": {"record_id": %q, "note": "load test record from worker %d", "created_at": %q}}`,
						*operation, uuid.NewString(), workerID, time.Now().Format(time.RFC3339Nano))

					req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewBufferString(payload))
					if err != nil {
						continue
					}
					req.Header.Set("Content-Type", "application/json")
					req.Header.Set("X-Tenant-Id", *tenantID)

					resp, err := client.Do(req)
					if err != nil {
						errorCount.Add(1)
						continue
					}

					switch resp.StatusCode {
					case http.StatusOK:
						successCount.Add(1)
					case http.StatusTooManyRequests:
						rateLimitedCount.Add(1)
					case http.StatusForbidden:
						quotaCount.Add(1)
					default:
						errorCount.Add(1)
					}
					resp.Body.Close()
				}
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + rateLimitedCount.Load() + quotaCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (200 OK): %d", successCount.Load())
	log.Printf("Rate Limited (429): %d", rateLimitedCount.Load())
	log.Printf("Quota Rejected (403): %d", quotaCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}
