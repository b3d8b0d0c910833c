/*
 * Copyright (C) 2026  Henrique Almeida
 * This file is part of OrderScout.
 *
 * OrderScout is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * OrderScout is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with OrderScout.  If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/h3nc4/OrderScout/internal/distributor"
)

func newRedistributeCommand() *cobra.Command {
	var (
		addr  string
		token string
	)
	cmd := &cobra.Command{
		Use:   "redistribute",
		Short: "Ask a running instance to rebuild every group assignment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := requestRedistribute(cmd.Context(), http.DefaultClient, addr, token)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Redistributed %d chats over %d workers\n", res.Chats, res.Workers)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "operator API base URL")
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token, ADMIN_TOKEN when empty")
	return cmd
}

func requestRedistribute(ctx context.Context, client *http.Client, addr, token string) (distributor.Result, error) {
	if token == "" {
		token = os.Getenv("ADMIN_TOKEN")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	url := strings.TrimRight(addr, "/") + "/api/distribution/redistribute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return distributor.Result{}, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return distributor.Result{}, fmt.Errorf("redistribute request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return distributor.Result{}, fmt.Errorf("redistribute failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res distributor.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return distributor.Result{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return res, nil
}
