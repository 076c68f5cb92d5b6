// Package batepapo provides a client for the batepapo chat room API.
package batepapo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Broadcast is the recipient that addresses everyone in the room.
const Broadcast = "Todos"

// ErrNotRegistered is returned by calls that need a participant name when
// none has been registered or loaded.
var ErrNotRegistered = errors.New("no participant registered")

// Client is a batepapo API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Name       string
	HTTPClient *http.Client
}

// Config holds the locally remembered participant.
type Config struct {
	Name string `json:"name"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Details    []string
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("batepapo error %d: %s (%v)", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("batepapo error %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a new client and loads a previously registered name
// from the config dir, if any.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}

	configDir := os.Getenv("BATEPAPO_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".batepapo")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the participant name from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "participant.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}
	c.Name = config.Name
	return nil
}

// SaveConfig saves the participant name to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{Name: c.Name}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "participant.json"), data, 0600)
}

// doRequest performs an HTTP request as the current participant and decodes
// a JSON reply into out when out is non-nil.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Name != "" {
		req.Header.Set("User", c.Name)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string   `json:"error"`
			Details []string `json:"details"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Details: errResp.Details}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) requireName() error {
	if c.Name == "" {
		return ErrNotRegistered
	}
	return nil
}

// RegisterResponse is the response from joining the room.
type RegisterResponse struct {
	Name string `json:"name"`
}

// Register joins the room under name and remembers the name the server
// accepted.
func (c *Client) Register(ctx context.Context, name string) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.doRequest(ctx, http.MethodPost, "/participants", map[string]string{"name": name}, &resp); err != nil {
		return nil, err
	}

	c.Name = resp.Name
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Participant is an active member of the room.
type Participant struct {
	Name       string `json:"name"`
	LastStatus int64  `json:"lastStatus"`
}

// LastActivity returns when the participant was last seen.
func (p Participant) LastActivity() time.Time {
	return time.UnixMilli(p.LastStatus)
}

// ListParticipants lists everyone currently in the room.
func (c *Client) ListParticipants(ctx context.Context) ([]Participant, error) {
	var resp []Participant
	if err := c.doRequest(ctx, http.MethodGet, "/participants", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Message represents a chat message.
type Message struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
	Type string `json:"type"`
	Time string `json:"time"`
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
	Type string `json:"type"`
}

// PostMessageResponse is the response from posting a message.
type PostMessageResponse struct {
	ID   string `json:"id"`
	Time string `json:"time"`
}

// PostMessage sends text to a participant or to Broadcast. Private messages
// are only visible to the sender and the recipient.
func (c *Client) PostMessage(ctx context.Context, to, text string, private bool) (*PostMessageResponse, error) {
	if err := c.requireName(); err != nil {
		return nil, err
	}

	req := PostMessageRequest{To: to, Text: text, Type: "message"}
	if private {
		req.Type = "private_message"
	}

	var resp PostMessageResponse
	if err := c.doRequest(ctx, http.MethodPost, "/messages", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMessages retrieves the messages visible to the participant, oldest
// first. A positive limit keeps only the newest ones.
func (c *Client) GetMessages(ctx context.Context, limit int) ([]Message, error) {
	if err := c.requireName(); err != nil {
		return nil, err
	}

	path := "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp []Message
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// KeepAlive tells the server the participant is still present.
func (c *Client) KeepAlive(ctx context.Context) error {
	if err := c.requireName(); err != nil {
		return err
	}
	return c.doRequest(ctx, http.MethodPost, "/status", nil, nil)
}

// DeleteMessage removes a message the participant sent.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	if err := c.requireName(); err != nil {
		return err
	}
	return c.doRequest(ctx, http.MethodDelete, "/messages/"+id, nil, nil)
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
