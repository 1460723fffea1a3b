// booking-load fires concurrent bookings at one slot and reports how many
// requests won. Exactly one 201 is expected; the rest should be 409.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bookwell/libs/grpcx"
)

func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		client   = flag.String("client", getenv("CLIENT", ""), "client id or booking slug")
		start    = flag.String("start", getenv("START_TIME", ""), "slot start time, RFC 3339")
		n        = flag.Int("n", 20, "concurrent requests")
		grpcAddr = flag.String("grpc-addr", getenv("GRPC_ADDR", ""), "optional health check address")
		service  = flag.String("service", "booking-service", "health service name")
	)
	flag.Parse()

	if strings.TrimSpace(*client) == "" || strings.TrimSpace(*start) == "" {
		fatal("client and start are required")
	}
	if _, err := time.Parse(time.RFC3339, *start); err != nil {
		fatal("start must be RFC 3339: " + err.Error())
	}

	if *grpcAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err := grpcx.Dial(ctx, *grpcAddr, grpcx.DialOptions{})
		if err != nil {
			cancel()
			fatal("grpc dial: " + err.Error())
		}
		err = grpcx.CheckHealth(ctx, conn, *service)
		_ = conn.Close()
		cancel()
		if err != nil {
			fatal("health: " + err.Error())
		}
		fmt.Println("health=SERVING")
	}

	url := strings.TrimRight(*baseURL, "/") + "/api/v1/public/bookings"
	httpClient := &http.Client{Timeout: 15 * time.Second}

	var (
		mu     sync.Mutex
		counts = map[string]int{}
		wg     sync.WaitGroup
		gate   = make(chan struct{})
	)
	for i := 0; i < *n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]string{
				"client":         *client,
				"start_time":     *start,
				"customer_name":  fmt.Sprintf("Load %d", i),
				"customer_email": fmt.Sprintf("load%d@example.com", i),
			})
			<-gate
			key := "load"
			req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
			if err == nil {
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Request-Id", uuid.NewString())
				var resp *http.Response
				resp, err = httpClient.Do(req)
				if err == nil {
					key = fmt.Sprintf("%d", resp.StatusCode)
					_ = resp.Body.Close()
				}
			}
			if err != nil {
				key = "error"
			}
			mu.Lock()
			counts[key]++
			mu.Unlock()
		}(i)
	}
	began := time.Now()
	close(gate)
	wg.Wait()

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("status=%s count=%d\n", k, counts[k])
	}
	fmt.Printf("elapsed=%s\n", time.Since(began).Round(time.Millisecond))
	if counts["201"] != 1 {
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
