package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/h1v3-io/jirabot/internal/config"
	"github.com/h1v3-io/jirabot/internal/dateresolve"
	"github.com/h1v3-io/jirabot/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "sessions":
		if len(os.Args) >= 4 && os.Args[2] == "show" {
			cmdSessionsShow(os.Args[3])
			return
		}
		cmdSessionsList()
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: jirabotctl tickets <list|show>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: jirabotctl tickets show <id>")
				os.Exit(1)
			}
			cmdTicketsShow(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "logs":
		cmdLogs(os.Args[2:])
	case "resolve":
		cmdResolve(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: jirabotctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- API client commands ---

func cmdHealth() {
	fmt.Println(string(mustGet("/api/health", nil)))
}

func cmdSessionsList() {
	var sessions []map[string]any
	json.Unmarshal(mustGet("/api/sessions", nil), &sessions)
	if len(sessions) == 0 {
		fmt.Println("no active sessions")
		return
	}
	for _, s := range sessions {
		fmt.Printf("%-12s %-12s %-14s %s\n", s["user"], s["channel"], s["step"], s["summary"])
	}
}

func cmdSessionsShow(user string) {
	fmt.Println(prettyJSON(mustGet("/api/sessions/"+url.PathEscape(user), nil)))
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (created|failed|date_unresolved|date_error)")
	user := fs.String("user", "", "Filter by Slack user ID")
	query := fs.String("q", "", "Search summary and issue key")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	q := url.Values{}
	q.Set("limit", strconv.Itoa(*limit))
	setIf(q, "status", *status)
	setIf(q, "user", *user)
	setIf(q, "q", *query)

	var list struct {
		Total   int              `json:"total"`
		Entries []map[string]any `json:"entries"`
	}
	json.Unmarshal(mustGet("/api/tickets", q), &list)
	for _, e := range list.Entries {
		key := e["issue_key"]
		if key == nil {
			key = "-"
		}
		fmt.Printf("%-36s %-16s %-10s %s\n", e["id"], e["status"], key, e["summary"])
	}
	fmt.Printf("(%d of %d)\n", len(list.Entries), list.Total)
}

func cmdTicketsShow(id string) {
	fmt.Println(prettyJSON(mustGet("/api/tickets/"+url.PathEscape(id), nil)))
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "info", "Minimum level (debug|info|warn|error)")
	component := fs.String("component", "", "Filter by component")
	contains := fs.String("q", "", "Filter by message text")
	since := fs.Duration("since", 0, "Only entries newer than this (e.g. 10m)")
	limit := fs.Int("limit", 100, "Max entries")
	fs.Parse(args)

	q := url.Values{}
	q.Set("level", *level)
	q.Set("limit", strconv.Itoa(*limit))
	setIf(q, "component", *component)
	setIf(q, "q", *contains)
	if *since > 0 {
		q.Set("since", strconv.FormatInt(time.Now().Add(-*since).UnixMilli(), 10))
	}

	var entries []struct {
		Time      time.Time      `json:"time"`
		Level     string         `json:"level"`
		Component string         `json:"component"`
		Message   string         `json:"message"`
		Attrs     map[string]any `json:"attrs"`
	}
	json.Unmarshal(mustGet("/api/logs", q), &entries)
	for _, e := range entries {
		attrs, _ := json.Marshal(e.Attrs)
		fmt.Printf("%s %-5s %-10s %s %s\n", e.Time.Format(time.RFC3339), e.Level, e.Component, e.Message, attrs)
	}
}

// --- Local commands ---

// cmdResolve runs the due-date resolver locally, without the daemon.
func cmdResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	useLLM := fs.Bool("llm", false, "Use the OpenAI resolver (needs OPENAI_API_KEY)")
	model := fs.String("model", envOr("OPENAI_MODEL", "gpt-3.5-turbo"), "OpenAI model")
	timeout := fs.Duration("timeout", 10*time.Second, "Resolution timeout")
	fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "usage: jirabotctl resolve [--llm] <text>")
		os.Exit(1)
	}

	var r dateresolve.Resolver = dateresolve.NewParser()
	if *useLLM {
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			fmt.Fprintln(os.Stderr, "error: OPENAI_API_KEY is required with --llm")
			os.Exit(1)
		}
		opts := []dateresolve.LLMOption{dateresolve.WithModel(*model)}
		if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
			opts = append(opts, dateresolve.WithBaseURL(base))
		}
		r = dateresolve.NewLLM(key, opts...)
	}

	d, err := dateresolve.Bounded{Inner: r, Timeout: *timeout}.Resolve(context.Background(), text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", r.Name(), err)
		os.Exit(1)
	}
	fmt.Println(d.Format(protocol.DateLayout))
}

func cmdConfigValidate(path string) {
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func mustGet(path string, q url.Values) []byte {
	body, err := apiGet(path, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return body
}

func apiGet(path string, q url.Values) ([]byte, error) {
	u := envOr("JIRABOT_URL", "http://localhost:8080") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("ADMIN_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("jirabotctl - jirabot admin CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                 Check daemon health")
	fmt.Println("  sessions               List in-progress dialogues")
	fmt.Println("  sessions show <user>   Show one user's draft")
	fmt.Println("  tickets list           List dialogue outcomes (--status, --user, --q, --limit)")
	fmt.Println("  tickets show <id>      Show one outcome")
	fmt.Println("  logs                   Tail daemon logs (--level, --component, --q, --since)")
	fmt.Println("  resolve <text>         Resolve a due-date phrase locally (--llm)")
	fmt.Println("  config validate <p>    Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  JIRABOT_URL     Daemon URL (default: http://localhost:8080)")
	fmt.Println("  ADMIN_API_KEY   API key for authentication")
	fmt.Println("  OPENAI_API_KEY  API key for resolve --llm")
}
