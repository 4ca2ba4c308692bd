// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianHub/services/hub"
	"github.com/AleutianAI/AleutianHub/services/hub/session"
)

// defaultHubURL matches the hub's default listen port.
const defaultHubURL = "http://localhost:12240"

// hubClient is a thin typed wrapper over the hub's HTTP API.
type hubClient struct {
	baseURL string
	http    *http.Client
}

// newClient resolves the hub address from the --hub-url flag, then
// HUB_URL, then the local development default.
func newClient() *hubClient {
	base := hubURL
	if base == "" {
		base = os.Getenv("HUB_URL")
	}
	if base == "" {
		base = defaultHubURL
	}
	return &hubClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

func (c *hubClient) Tools(req hub.ToolsRequest, explain bool) (*hub.ToolsResponse, error) {
	path := "/v1/hub/tools"
	if explain {
		path += "?explain=true"
	}
	var resp hub.ToolsResponse
	if err := c.do(http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *hubClient) Call(req hub.CallRequest) (*hub.CallResponse, error) {
	var resp hub.CallResponse
	if err := c.do(http.MethodPost, "/v1/hub/call", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *hubClient) Command(req hub.CommandRequest) (*hub.CommandResult, error) {
	var resp hub.CommandResult
	if err := c.do(http.MethodPost, "/v1/hub/command", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *hubClient) Status() (*hub.StatusResponse, error) {
	var resp hub.StatusResponse
	if err := c.do(http.MethodGet, "/v1/hub/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *hubClient) Catalog() (*hub.CatalogResponse, error) {
	var resp hub.CatalogResponse
	if err := c.do(http.MethodGet, "/v1/hub/catalog", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *hubClient) End(id string) (*session.Summary, error) {
	var resp session.Summary
	path := "/v1/hub/sessions/" + url.PathEscape(id)
	if err := c.do(http.MethodDelete, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *hubClient) Refresh(server string) (*hub.StatusResponse, error) {
	var resp hub.StatusResponse
	path := "/v1/hub/servers/" + url.PathEscape(server) + "/refresh"
	if err := c.do(http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends one request and decodes the response into out. Non-2xx
// responses are decoded as the hub's error envelope.
func (c *hubClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hub unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr hub.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Code != "" {
				return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Code)
			}
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("hub returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
