package supplement

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPChannel fetches supplemental data from an HTTP endpoint. The subject
// key is passed as the "subject" query parameter.
type HTTPChannel struct {
	name     string
	endpoint string
	client   *http.Client
}

var _ Channel = (*HTTPChannel)(nil)

// NewHTTPChannel builds a channel for one endpoint.
func NewHTTPChannel(name, endpoint string, timeout time.Duration) *HTTPChannel {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPChannel{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPChannel) Name() string { return c.name }

// Fetch performs the GET and returns the raw body. Non-2xx statuses are
// surfaced as errors with the status text so the classifier can read them.
func (c *HTTPChannel) Fetch(ctx context.Context, subjectKey string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint for channel %s: %w", c.name, err)
	}
	q := u.Query()
	q.Set("subject", subjectKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("channel %s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("channel %s read failed: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("channel %s returned %d %s: %s", c.name, resp.StatusCode, http.StatusText(resp.StatusCode), truncateBody(body))
	}
	return string(body), nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// ChannelsFromEndpoints builds HTTP channels for every configured
// endpoint, in a stable order. Channels without an endpoint are omitted.
func ChannelsFromEndpoints(endpoints map[string]string, timeout time.Duration) []Channel {
	names := []string{
		ChannelLiterature,
		ChannelStudyRegistry,
		ChannelPriorAssessments,
		ChannelTerminology,
		ChannelGuidance,
	}
	channels := make([]Channel, 0, len(names))
	for _, name := range names {
		if ep, ok := endpoints[name]; ok && ep != "" {
			channels = append(channels, NewHTTPChannel(name, ep, timeout))
		}
	}
	return channels
}
