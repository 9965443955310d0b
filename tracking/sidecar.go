package tracking

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sidecar ships tracking events to a local dashboard service over
// HTTP. Requests are retried a fixed number of times; a disabled
// client silently drops events so training never blocks on the
// dashboard being down.
type Sidecar struct {
	baseURL    string
	httpClient *http.Client
	enabled    bool

	retryAttempts int
	retryDelay    time.Duration
}

// SidecarConfig contains configuration for the sidecar client.
type SidecarConfig struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// DefaultSidecarConfig returns the default sidecar configuration.
func DefaultSidecarConfig() SidecarConfig {
	return SidecarConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// sidecarResponse is the envelope every sidecar endpoint answers with.
type sidecarResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewSidecar creates a sidecar client. It starts disabled; call Enable
// after a successful CheckHealth.
func NewSidecar(config SidecarConfig) *Sidecar {
	return &Sidecar{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retryAttempts: config.RetryAttempts,
		retryDelay:    config.RetryDelay,
	}
}

// Enable enables event delivery.
func (s *Sidecar) Enable() {
	s.enabled = true
}

// Disable stops event delivery.
func (s *Sidecar) Disable() {
	s.enabled = false
}

// IsEnabled returns whether events are being delivered.
func (s *Sidecar) IsEnabled() bool {
	return s.enabled
}

// CheckHealth checks if the sidecar service is reachable.
func (s *Sidecar) CheckHealth() error {
	url := fmt.Sprintf("%s/health", s.baseURL)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

func (s *Sidecar) post(path string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s%s", s.baseURL, path)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "monodepth-training")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var sr sidecarResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, sr.Message)
	}
	return nil
}

// postWithRetry retries transient failures before giving up.
func (s *Sidecar) postWithRetry(path string, payload interface{}) error {
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if err := s.post(path, payload); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < s.retryAttempts-1 {
			time.Sleep(s.retryDelay)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", s.retryAttempts, lastErr)
}

func (s *Sidecar) LogScalar(name string, value float64, step int) error {
	if !s.enabled {
		return nil
	}
	return s.postWithRetry("/api/scalar", map[string]interface{}{
		"name":  name,
		"value": value,
		"step":  step,
	})
}

func (s *Sidecar) LogImage(name string, png []byte, step int) error {
	if !s.enabled {
		return nil
	}
	return s.postWithRetry("/api/image", map[string]interface{}{
		"name": name,
		"png":  base64.StdEncoding.EncodeToString(png),
		"step": step,
	})
}

func (s *Sidecar) SetSummary(key string, value float64) error {
	if !s.enabled {
		return nil
	}
	return s.postWithRetry("/api/summary", map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func (s *Sidecar) Close() error {
	s.enabled = false
	return nil
}
