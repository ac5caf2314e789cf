// Package jitstreamer uploads pair records to a JitStreamer server.
package jitstreamer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// DefaultTarget is the public JitStreamer instance.
const DefaultTarget = "https://jitstreamer.com"

// ErrMalformedResponse is returned when the server reply is not the expected JSON object.
var ErrMalformedResponse = errors.New("malformed response from server")

// Response is the result of an upload.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Client talks to the server at Target.
type Client struct {
	Target     string
	HTTPClient *http.Client
}

// NewClient creates a Client for target with the given request timeout.
func NewClient(target string, timeout time.Duration) *Client {
	return &Client{
		Target:     target,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// FollowUpURL returns the endpoint a pair record for code is posted to.
func (c *Client) FollowUpURL(code string) string {
	return fmt.Sprintf("%s/potential_follow_up/%s/", strings.TrimRight(c.Target, "/"), url.PathEscape(code))
}

// Upload posts the serialized pair record for code and decodes the server verdict.
// A reply with success=false is not an error, callers check Response.Success.
func (c *Client) Upload(ctx context.Context, code string, record []byte) (Response, error) {
	endpoint := c.FollowUpURL(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(record))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/x-plist")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed sending pair record: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed reading response: %w", err)
	}
	log.WithFields(log.Fields{"url": endpoint, "status": resp.StatusCode}).Debug("pair record uploaded")
	return decodeResponse(body)
}

func decodeResponse(body []byte) (Response, error) {
	var raw struct {
		Success *bool   `json:"success"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Success == nil {
		return Response{}, fmt.Errorf("%w: missing success field", ErrMalformedResponse)
	}
	response := Response{Success: *raw.Success}
	if raw.Message != nil {
		response.Message = *raw.Message
	}
	return response, nil
}
