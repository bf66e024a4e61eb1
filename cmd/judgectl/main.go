package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"contestjudge/internal/cli/command"
	"contestjudge/internal/cli/config"
	httpclient "contestjudge/internal/cli/http"
	"contestjudge/internal/cli/repl"
	"contestjudge/internal/cli/state"

	"github.com/chzyer/readline"
)

const defaultConfigPath = "configs/judgectl.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	contest := flag.String("contest", "", "Contest to use for contest and leaderboard commands")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	session, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		os.Exit(1)
	}
	if session.BaseURL != "" {
		cfg.BaseURL = session.BaseURL
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *contest != "" {
		session.Contest = *contest
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	client := httpclient.New(cfg.BaseURL, cfg.Timeout)
	r := repl.New(client, command.Registry(), &session, cfg.StatePath, *cfg.PrettyJSON, os.Stdout)

	// One-shot mode: judgectl leaderboard show contest=c1
	if args := flag.Args(); len(args) > 0 {
		if err := r.Execute(ctx, nil, strings.Join(quoteArgs(args), " ")); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.Prompt(),
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init terminal failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()
	r.Run(ctx, rl)
}

// quoteArgs re-quotes shell-split arguments so the line survives shlex again.
func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"'\\") {
			escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a)
			out[i] = `"` + escaped + `"`
			continue
		}
		out[i] = a
	}
	return out
}
