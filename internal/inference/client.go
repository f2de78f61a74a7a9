// Package inference adapts an Ollama-compatible generate endpoint.
// Response-shape validation is owned by the callers, not this client.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrTimeout signals the model did not answer within the deadline.
	ErrTimeout = errors.New("inference timeout")
	// ErrConnection signals the inference service could not be reached.
	ErrConnection = errors.New("inference connection error")
)

// Client posts prompts to a local generative model and returns the raw
// response text. Inference calls carry a materially larger timeout than
// weather-source calls; a single slow answer is expected, so there are
// no retries.
type Client struct {
	httpClient *http.Client
	url        string
	model      string
	circuit    *gobreaker.CircuitBreaker
}

// NewClient creates an inference client. timeout should be minutes-scale.
func NewClient(url, model string, timeout time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "inference",
		MaxRequests: 2,
		Interval:    5 * time.Minute,
		Timeout:     5 * time.Minute,
	})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		model:      model,
		circuit:    cb,
	}
}

// Infer submits the prompt requesting JSON-formatted output and returns
// the model's raw text answer.
func (c *Client) Infer(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  c.model,
		"prompt": prompt,
		"format": "json",
		"stream": false,
	})
	if err != nil {
		return "", err
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, classify(doErr)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: status %d", ErrConnection, resp.StatusCode)
		}

		var envelope struct {
			Response string `json:"response"`
		}
		if decErr := json.NewDecoder(resp.Body).Decode(&envelope); decErr != nil {
			return nil, fmt.Errorf("%w: decoding envelope: %v", ErrConnection, decErr)
		}
		if envelope.Response == "" {
			return nil, fmt.Errorf("%w: response field missing", ErrConnection)
		}
		return envelope.Response, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return "", err
	}

	return result.(string), nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
