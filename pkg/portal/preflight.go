package portal

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Preflight probes the portal login endpoint to confirm it is reachable
// before a monitor run is offered to operators. Retries are fine here, this
// is a reachability check and not a monitoring cycle.
func Preflight(timeout time.Duration) error {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	client.HTTPClient.Timeout = timeout

	resp, err := client.Get(LoginURL)
	if err != nil {
		return fmt.Errorf("portal unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("portal returned status %d", resp.StatusCode)
	}
	return nil
}
