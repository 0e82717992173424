// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RemoteAPI is the write surface of the remote backend, three operations per
// collection. Any backend exposing these semantics satisfies the contract;
// the loansync package in this repo is the reference implementation.
type RemoteAPI interface {
	// Create inserts a new remote record and returns the stored row,
	// including the backend-assigned id.
	Create(ctx context.Context, collection Collection, payload Record) (Record, error)

	// Update overwrites the remote record addressed by id.
	Update(ctx context.Context, collection Collection, id string, payload Record) (Record, error)

	// SoftDelete marks a deletion timestamp on the remote record. Rows are
	// never hard-deleted through the sync path.
	SoftDelete(ctx context.Context, collection Collection, id string) (Record, error)
}

// RemoteClient is the HTTP implementation of RemoteAPI.
type RemoteClient struct {
	BaseURL string
	Token   func(context.Context) (string, error) // returns a bearer token, nil for unauthenticated backends
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewRemoteClient creates an HTTP remote client for the given backend.
func NewRemoteClient(baseURL string, token func(context.Context) (string, error), logger *slog.Logger) *RemoteClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

// Create implements RemoteAPI.
func (c *RemoteClient) Create(ctx context.Context, collection Collection, payload Record) (Record, error) {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/api/%s", c.BaseURL, collection), payload)
}

// Update implements RemoteAPI.
func (c *RemoteClient) Update(ctx context.Context, collection Collection, id string, payload Record) (Record, error) {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("%s/api/%s/%s", c.BaseURL, collection, id), payload)
}

// SoftDelete implements RemoteAPI.
func (c *RemoteClient) SoftDelete(ctx context.Context, collection Collection, id string) (Record, error) {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/api/%s/%s", c.BaseURL, collection, id), nil)
}

func (c *RemoteClient) do(ctx context.Context, method, url string, payload Record) (Record, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get auth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remote %s %s returned %s: %s",
			method, url, resp.Status, remoteErrorMessage(respBody))
	}

	var record Record
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &record); err != nil {
			return nil, fmt.Errorf("failed to decode remote record: %w", err)
		}
	}
	return record, nil
}

// remoteErrorMessage pulls the message out of the backend's error envelope,
// falling back to the raw body.
func remoteErrorMessage(body []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	const maxLen = 200
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	return string(body)
}
