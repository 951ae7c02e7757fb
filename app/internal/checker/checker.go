// Package checker probes monitor URLs and turns the results into ticks.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"uptime/app/internal/models"
)

// Result is the outcome of one probe
type Result struct {
	Status    models.TickStatus
	LatencyMs int
	Code      int
	Err       string
}

var metadataHosts = map[string]bool{
	"metadata.google.internal": true,
	"metadata":                 true,
}

// isCloudMetadataIP reports whether ip is a cloud instance metadata endpoint
func isCloudMetadataIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return ip.Equal(net.ParseIP("169.254.169.254")) || ip.Equal(net.ParseIP("fd00:ec2::254"))
}

// ValidateURLTarget rejects URLs that point at cloud metadata services.
// Private addresses are allowed since monitors often watch internal hosts.
func ValidateURLTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.New("url has no host")
	}
	if metadataHosts[host] || isCloudMetadataIP(net.ParseIP(host)) {
		return errors.New("url targets a cloud metadata endpoint")
	}
	return nil
}

// Probe performs one HTTP check of m. A response whose code is not in the
// monitor's expected codes is Bad, as is any transport error.
func Probe(ctx context.Context, client *http.Client, m models.Monitor) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return Result{Status: models.TickBad, Err: err.Error()}
	}
	req.Header.Set("User-Agent", "uptime-validator/1")

	t0 := time.Now()
	resp, err := client.Do(req)
	ms := int(time.Since(t0).Milliseconds())
	if err != nil {
		return Result{Status: models.TickBad, LatencyMs: ms, Err: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res := Result{Status: models.TickBad, LatencyMs: ms, Code: resp.StatusCode}
	if expected(m, resp.StatusCode) {
		res.Status = models.TickGood
	} else {
		res.Err = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return res
}

func expected(m models.Monitor, code int) bool {
	if len(m.ExpectedStatusCodes) == 0 {
		return code == http.StatusOK
	}
	for _, c := range m.ExpectedStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}
