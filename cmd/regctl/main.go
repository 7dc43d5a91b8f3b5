// regctl is the operator CLI for the registry API: it obtains tokens,
// checks health, and queries the audit log over HTTP.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var version = "0.3.1"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:   "regctl",
		Short: "Operator CLI for the artifact registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&addr, "addr", envOr("REGCTL_ADDR", "http://localhost:8080"), "registry API base URL")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newHealthCmd(&addr))
	root.AddCommand(newLoginCmd(&addr))
	root.AddCommand(newAuditCmd(&addr))
	root.AddCommand(newResetCmd(&addr))

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newHealthCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the registry's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			return getJSON(ctx, cmd.OutOrStdout(), *addr+"/health", "")
		},
	}
}

func newLoginCmd(addr *string) *cobra.Command {
	var user, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a credential for a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" || password == "" {
				return fmt.Errorf("both --user and --password are required")
			}
			body, err := json.Marshal(map[string]any{
				"user":   map[string]any{"name": user},
				"secret": map[string]any{"password": password},
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodPut, *addr+"/authenticate", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			return doJSON(cmd.OutOrStdout(), req)
		},
	}
	cmd.Flags().StringVar(&user, "user", envOr("REGCTL_USER", ""), "user name")
	cmd.Flags().StringVar(&password, "password", envOr("REGCTL_PASSWORD", ""), "password")
	return cmd
}

func newAuditCmd(addr *string) *cobra.Command {
	var (
		token   string
		start   string
		end     string
		subject string
		action  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit log (admin token required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if start != "" {
				q.Set("start", start)
			}
			if end != "" {
				q.Set("end", end)
			}
			if subject != "" {
				q.Set("subject_id", subject)
			}
			if action != "" {
				q.Set("action", action)
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			target := *addr + "/audit/logs"
			if len(q) > 0 {
				target += "?" + q.Encode()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return getJSON(ctx, cmd.OutOrStdout(), target, token)
		},
	}
	cmd.Flags().StringVar(&token, "token", envOr("REGCTL_TOKEN", ""), "bearer token")
	cmd.Flags().StringVar(&start, "start", "", "start of time range (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end of time range (RFC3339)")
	cmd.Flags().StringVar(&subject, "subject", "", "filter by subject id")
	cmd.Flags().StringVar(&action, "action", "", "filter by action, e.g. artifact.create")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events to return")
	return cmd
}

func newResetCmd(addr *string) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the registry to its default state (admin token required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodDelete, *addr+"/reset", nil)
			if err != nil {
				return err
			}
			setAuth(req, token)
			return doJSON(cmd.OutOrStdout(), req)
		},
	}
	cmd.Flags().StringVar(&token, "token", envOr("REGCTL_TOKEN", ""), "bearer token")
	return cmd
}

func getJSON(ctx context.Context, out io.Writer, target, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	setAuth(req, token)
	return doJSON(out, req)
}

func doJSON(out io.Writer, req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	fmt.Fprintln(out, strings.TrimSpace(string(body)))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, resp.Status)
	}
	return nil
}

func setAuth(req *http.Request, token string) {
	if token == "" {
		return
	}
	if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = "bearer " + token
	}
	req.Header.Set("Authorization", token)
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
