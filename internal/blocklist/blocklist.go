package blocklist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/siritami/gatewaysync/internal/domains"
	"github.com/siritami/gatewaysync/internal/iface"
)

// maxLineLen bounds a single list line; some hosts files carry very long
// comment banners.
const maxLineLen = 1024 * 1024

// Parse reads a block-list or allow-list in hosts or adblock syntax and
// returns the normalized, validated domains in first-seen order with
// duplicates removed. Lines that do not normalize to a valid domain are
// silently skipped.
func Parse(r io.Reader, allowlisting bool) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLen)

	seen := make(map[string]struct{})
	var out []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isComment(line) {
			continue
		}
		if i := strings.Index(line, "#"); i > 0 {
			line = strings.TrimSpace(line[:i])
		}
		domain := domains.Canonical(domains.Normalize(line, allowlisting))
		if !domains.Valid(domain) {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, domain)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan list: %w", err)
	}
	return out, nil
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[")
}

// Download fetches a list over HTTP and parses it. Any non-2xx status is an
// error; there is no retry at this layer.
func Download(ctx context.Context, doer iface.Doer, rawURL string, allowlisting bool) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request for %s: %w", rawURL, err)
	}
	resp, err := doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	return Parse(resp.Body, allowlisting)
}
