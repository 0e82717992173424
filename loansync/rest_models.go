// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loansync

// REST/JSON models for HTTP API responses. Record bodies are flattened rows
// (see Record.MarshalJSON); requests are raw JSON objects validated by the
// service.

// ErrorResponse is the error envelope returned for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusResponse describes service health and configuration.
type StatusResponse struct {
	Status      string   `json:"status"` // healthy, degraded, unhealthy
	AppName     string   `json:"app_name"`
	Collections []string `json:"collections"` // collections registered for sync writes
}
