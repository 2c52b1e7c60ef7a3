// File: internal/proxy/rotation.go

// Package proxy holds the rotation allocator that hands out egress endpoints
// round-robin to concurrent workers.
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// Rotation is an ordered pool of proxy endpoints with a rotation cursor.
// An endpoint is an opaque "host:port" string. All methods are safe for
// concurrent use; Next is the hot path and holds the lock only long enough
// to advance the cursor.
type Rotation struct {
	mu        sync.Mutex
	endpoints []string
	cursor    int
}

// NewRotation creates a rotation pool seeded with the given endpoints.
// Duplicates and blank entries are dropped.
func NewRotation(endpoints ...string) *Rotation {
	r := &Rotation{}
	for _, e := range endpoints {
		r.Add(e)
	}
	return r
}

// Add inserts an endpoint unless it is blank or already present.
func (r *Rotation) Add(endpoint string) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.endpoints {
		if e == endpoint {
			return
		}
	}
	r.endpoints = append(r.endpoints, endpoint)
}

// Load replaces the entire pool and resets the cursor. Blank lines are
// skipped; duplicates within the input are collapsed.
func (r *Rotation) Load(lines []string) int {
	cleaned := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		cleaned = append(cleaned, line)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = cleaned
	r.cursor = 0
	return len(cleaned)
}

// LoadFile replaces the pool with the endpoints listed one per line in the
// given file.
func (r *Rotation) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open proxy file %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read proxy file %s: %w", path, err)
	}
	return r.Load(lines), nil
}

// Next returns the endpoint at the cursor and advances it modulo the pool
// size. The second return is false when the pool is empty, in which case the
// caller should proceed with a direct connection.
func (r *Rotation) Next() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.endpoints) == 0 {
		return "", false
	}
	endpoint := r.endpoints[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.endpoints)
	return endpoint, true
}

// Len reports the current pool size.
func (r *Rotation) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}

// Endpoints returns a copy of the current pool in order.
func (r *Rotation) Endpoints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// CheckSOCKS5 probes an endpoint by opening a SOCKS5 connection through it to
// a well-known target. It reports nil when the proxy accepts the dial within
// the timeout.
func CheckSOCKS5(ctx context.Context, endpoint string, timeout time.Duration) error {
	dialer, err := xproxy.SOCKS5("tcp", endpoint, nil, &net.Dialer{Timeout: timeout})
	if err != nil {
		return fmt.Errorf("failed to build SOCKS5 dialer for %s: %w", endpoint, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	contextDialer, ok := dialer.(xproxy.ContextDialer)
	if !ok {
		return fmt.Errorf("SOCKS5 dialer for %s does not support context dialing", endpoint)
	}

	conn, err := contextDialer.DialContext(dialCtx, "tcp", "www.bing.com:443")
	if err != nil {
		return fmt.Errorf("SOCKS5 probe through %s failed: %w", endpoint, err)
	}
	return conn.Close()
}
