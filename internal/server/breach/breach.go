// Package breach queries a k-anonymity breached-password corpus. Callers send
// only a short prefix of the password digest and receive the suffixes the
// corpus holds for that prefix.
package breach

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PrefixLength is the number of hex characters sent to the corpus.
const PrefixLength = 5

// Lookup returns the corpus body for a digest prefix: newline-separated
// "SUFFIX:COUNT" lines.
type Lookup interface {
	Range(ctx context.Context, prefix string) (string, error)
}

// HTTPLookup talks to a Pwned Passwords compatible range endpoint.
type HTTPLookup struct {
	baseURL string
	client  *http.Client
}

const DefaultBaseURL = "https://api.pwnedpasswords.com/range/"

func NewHTTPLookup(baseURL string, timeout time.Duration) *HTTPLookup {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &HTTPLookup{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (l *HTTPLookup) Range(ctx context.Context, prefix string) (string, error) {
	if len(prefix) != PrefixLength {
		return "", fmt.Errorf("prefix must be %d characters", PrefixLength)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+prefix, nil)
	if err != nil {
		return "", err
	}
	// Padding hides the real number of suffixes from observers.
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("User-Agent", "learnkeeper")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("range lookup: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Count scans body for suffix and returns its occurrence count. Padding
// entries carry a count of zero and never match.
func Count(body, suffix string) int {
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		s, n, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(s, suffix) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return count
	}
	return 0
}
