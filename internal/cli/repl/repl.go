package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"contestjudge/internal/cli/command"
	httpclient "contestjudge/internal/cli/http"
	"contestjudge/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// LineReader is the terminal side of a session. *readline.Instance
// satisfies it.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	state      *state.Session
	statePath  string
	prettyJSON bool
	out        io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, st *state.Session, statePath string, prettyJSON bool, out io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		state:      st,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		out:        out,
	}
}

// Prompt is the input prompt, showing the current contest.
func (s *Session) Prompt() string {
	if s.state.Contest != "" {
		return fmt.Sprintf("judgectl[%s]> ", s.state.Contest)
	}
	return "judgectl> "
}

// Run reads lines until EOF, exit, or an interrupt on an empty line.
func (s *Session) Run(ctx context.Context, in LineReader) {
	in.SetPrompt(s.Prompt())
	for {
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return
		}
		if err := s.Execute(ctx, in, line); err != nil {
			s.printLine("error: %v", err)
		}
		in.SetPrompt(s.Prompt())
	}
}

// Execute runs one input line. Missing required fields are read from in.
func (s *Session) Execute(ctx context.Context, in LineReader, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	if handled, err := s.handleSystemCommand(tokens); handled {
		return err
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <group> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	params.Canonicalize(cmd.Fields)
	if cmd.ContestScoped && params.Get("id") == "" && s.state.Contest != "" {
		params.Set("id", s.state.Contest)
	}
	if err := s.promptMissing(in, cmd, params); err != nil {
		return err
	}

	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) handleSystemCommand(tokens []string) (bool, error) {
	switch tokens[0] {
	case "help":
		s.printHelp()
		return true, nil
	case "use":
		if len(tokens) != 2 {
			return true, fmt.Errorf("usage: use <contest_id>")
		}
		s.state.Contest = tokens[1]
		s.printLine("using contest %s", tokens[1])
		return true, s.save()
	case "set":
		return true, s.handleSet(tokens[1:])
	case "show":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("contest: %s", valueOrEmpty(s.state.Contest))
		s.printLine("statePath: %s", s.statePath)
		return true, nil
	}
	return false, nil
}

func (s *Session) handleSet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set base <url> | set timeout <duration>")
	}
	switch args[0] {
	case "base":
		s.client.SetBaseURL(args[1])
		s.state.BaseURL = args[1]
		s.printLine("base set to %s", args[1])
		return s.save()
	case "timeout":
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
		return nil
	}
	return fmt.Errorf("unknown setting %q", args[0])
}

func (s *Session) save() error {
	if s.statePath == "" {
		return nil
	}
	return state.Save(s.statePath, *s.state)
}

// promptMissing asks for required fields that were not given. Without a
// reader they are an error.
func (s *Session) promptMissing(in LineReader, cmd command.Command, params command.Params) error {
	if in != nil {
		defer in.SetPrompt(s.Prompt())
	}
	for _, field := range cmd.Fields {
		if !field.Required || strings.TrimSpace(params.Get(field.Name)) != "" {
			continue
		}
		if in == nil {
			return fmt.Errorf("missing parameter: %s", field.Name)
		}
		in.SetPrompt(field.Prompt + ": ")
		value, err := in.Readline()
		if err != nil {
			return fmt.Errorf("read %s failed: %w", field.Prompt, err)
		}
		params.Set(field.Name, strings.TrimSpace(value))
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s) trace=%s", resp.StatusCode, resp.Duration.Round(time.Millisecond), resp.TraceID)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) printHelp() {
	s.printLine("usage: <group> <action> key=value ...")
	s.printLine("system: help | exit | use <contest> | set base|timeout <value> | show")
	for _, cmd := range command.Sorted(s.commands) {
		s.printLine("  %-22s %s", cmd.Key(), cmd.Summary)
	}
	s.printLine("examples:")
	s.printLine("  use spring-2026")
	s.printLine("  leaderboard show as_of=2026-03-01T12:00:00Z")
	s.printLine("  submission requeue id=0f3c9a")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func valueOrEmpty(v string) string {
	if v == "" {
		return "<none>"
	}
	return v
}
