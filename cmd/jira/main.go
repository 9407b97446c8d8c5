package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/splax/peep/internal/integration/atlassian"
	"github.com/splax/peep/internal/integration/jira"
	"github.com/splax/peep/pkg/config"
	"github.com/splax/peep/pkg/logger"
)

func main() {
	command := flag.String("command", "get", "jira command (get|comment)")
	issue := flag.String("issue", "", "issue id or key, e.g. ABC-1")
	body := flag.String("body", "", "comment text for the comment command")
	timeout := flag.Duration("timeout", 30*time.Second, "command timeout")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.NewWithWriter(os.Stderr, "jira", logger.ParseLevel(cfg.LogLevel))

	if strings.TrimSpace(*issue) == "" {
		log.Error("issue is required")
		os.Exit(2)
	}

	appKey, err := jira.AppKey(cfg.PublicURL)
	if err != nil {
		log.Error("failed to derive app key", "error", err)
		os.Exit(1)
	}
	client, err := jira.NewClient(cfg.JiraBaseURL, cfg.JiraSharedSecret, appKey,
		atlassian.WithRetryMax(cfg.JiraRetryMax),
		atlassian.WithTimeout(cfg.JiraTimeout),
		atlassian.WithLogger(log),
	)
	if err != nil {
		log.Error("failed to configure jira client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var resp *atlassian.Response
	switch *command {
	case "get":
		resp, err = client.GetIssue(ctx, *issue)
	case "comment":
		if strings.TrimSpace(*body) == "" {
			log.Error("body is required for comment")
			os.Exit(2)
		}
		resp, err = client.CreateComment(ctx, *issue, *body)
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(2)
	}
	if err != nil {
		log.Error("jira request failed", "command", *command, "issue", *issue, "error", err)
		os.Exit(1)
	}

	log.Info("jira request completed", "command", *command, "issue", *issue, "status", resp.StatusCode, "app_key", appKey)
	var out bytes.Buffer
	if err := json.Indent(&out, resp.Body, "", "  "); err != nil {
		out.Reset()
		out.Write(resp.Body)
	}
	fmt.Fprintln(os.Stdout, out.String())
}
