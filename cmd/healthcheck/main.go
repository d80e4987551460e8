// Command healthcheck probes a running goose-example's HTTP Controller
// /health route, for use as a container HEALTHCHECK.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("GOOSE_WEBSOCKET_PORT")
	if port == "" {
		port = "5117"
	}

	url := fmt.Sprintf("http://localhost:%s/health", port)

	client := &http.Client{
		Timeout: 2 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check returned status: %d\n", resp.StatusCode)
		os.Exit(1)
	}

	os.Exit(0)
}
