package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// iiodPort is the TCP port the IIO network daemon listens on. Network-attached
// Pluto devices expose their context through it.
const iiodPort = "30431"

// RadioChecker probes reachability of the SDR at the given libiio URI.
//
// For "ip:" URIs it dials the iiod TCP port on the named host. Other URI
// schemes (usb:, local:) have no network endpoint to probe, so the check
// passes without doing anything.
func RadioChecker(uri string) Checker {
	return Checker{
		Name: "radio",
		Check: func(ctx context.Context) error {
			host, ok := strings.CutPrefix(uri, "ip:")
			if !ok {
				return nil
			}
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, iiodPort))
			if err != nil {
				return fmt.Errorf("health: dial iiod at %q: %w", host, err)
			}
			return conn.Close()
		},
	}
}

// EndpointChecker probes an HTTP endpoint with a GET request. Any response
// with a status below 500 counts as healthy; provider servers commonly answer
// their root path with 404 while being perfectly operational.
func EndpointChecker(name, url string) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("health: build request for %q: %w", url, err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("health: reach %q: %w", url, err)
			}
			resp.Body.Close()
			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("health: %q returned status %d", url, resp.StatusCode)
			}
			return nil
		},
	}
}
