package imagery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/geoguardian/landcover-monitor-poc/internal/retry"
)

// guardedGet fetches url through the guard, retrying on 429 and 5xx.
func guardedGet(ctx context.Context, guard *retry.Guard, client *http.Client, op, url string) ([]byte, error) {
	return retry.DoValue(guard, op, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, retry.Transient(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, retry.Transient(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.Transientf("GET %s returned %d", url, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s returned %d: %s", url, resp.StatusCode, truncate(body))
		}
		return body, nil
	})
}

// guardedPostJSON posts payload to url through the guard with the same
// retry rules as guardedGet.
func guardedPostJSON(ctx context.Context, guard *retry.Guard, client *http.Client, op, url string, payload []byte) ([]byte, error) {
	return retry.DoValue(guard, op, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return nil, retry.Transient(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, retry.Transient(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.Transientf("POST %s returned %d", url, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("POST %s returned %d: %s", url, resp.StatusCode, truncate(body))
		}
		return body, nil
	})
}

// downloadTo streams url into path through the guard.
func downloadTo(ctx context.Context, guard *retry.Guard, client *http.Client, op, url, path string) error {
	return guard.Do(op, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return retry.Transientf("GET %s returned %d", url, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("GET %s returned %d: %s", url, resp.StatusCode, truncate(body))
		}

		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			os.Remove(path)
			return retry.Transient(err)
		}
		return f.Close()
	})
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
