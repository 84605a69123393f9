package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/insightd/internal/http"
)

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// client talks to the insightd HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(opts *options) *client {
	return &client{
		baseURL: strings.TrimRight(opts.serverURL, "/"),
		http:    &http.Client{Timeout: opts.timeout},
	}
}

// do sends a request and decodes a JSON response into out when out is not
// nil.
func (c *client) do(ctx context.Context, method, path string, out any) error {
	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError extracts echo's {"message": ...} body when present.
func decodeError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &apiError{Status: resp.StatusCode}
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return &apiError{Status: resp.StatusCode, Message: payload.Message}
	}
	return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func userPath(userID string, rest ...string) string {
	parts := append([]string{"/api/v1/users", url.PathEscape(userID)}, rest...)
	return strings.Join(parts, "/")
}

func newInsightsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "List or delete recorded insights",
	}

	list := &cobra.Command{
		Use:   "list <user>",
		Short: "List a user's insights, strongest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.InsightsResponse
			if err := newClient(opts).do(cmd.Context(), http.MethodGet, userPath(args[0], "insights"), &resp); err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			renderInsights(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <user> <pattern_type>",
		Short: "Delete one insight. Deleting a missing insight succeeds.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := userPath(args[0], "insights", url.PathEscape(args[1]))
			if err := newClient(opts).do(cmd.Context(), http.MethodDelete, path, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s for %s\n", okStyle.Render("✓"), args[1], args[0])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func newAdvisoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "advisory <user>",
		Short: "Show the advisory text built from a user's significant insights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.AdvisoryResponse
			if err := newClient(opts).do(cmd.Context(), http.MethodGet, userPath(args[0], "advisory"), &resp); err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			if resp.Advisory == "" {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No significant insights yet."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Advisory)
			return nil
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check insightd server health",
		Long: `Check the health status of the insightd HTTP server.

Examples:
  insightctl health
  insightctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.HealthResponse
			if err := newClient(opts).do(cmd.Context(), http.MethodGet, "/health", &resp); err != nil {
				var apiErr *apiError
				if !errors.As(err, &apiErr) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s cannot reach %s\n", errorStyle.Render("✗"), opts.serverURL)
				}
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			renderHealth(cmd.OutOrStdout(), opts.serverURL, resp)
			return nil
		},
	}
}

func newCatalogCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the pattern types the server detects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.CatalogResponse
			if err := newClient(opts).do(cmd.Context(), http.MethodGet, "/api/v1/catalog", &resp); err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			renderCatalog(cmd.OutOrStdout(), resp)
			return nil
		},
	}
}
