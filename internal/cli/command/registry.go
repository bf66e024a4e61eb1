package command

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

var (
	contestField    = Field{Name: "id", Aliases: []string{"contest"}, Prompt: "contest_id", Required: true}
	submissionField = Field{Name: "id", Aliases: []string{"submission"}, Prompt: "submission_id", Required: true}
)

// Registry returns all judgectl commands keyed by "group action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Group:        "submission",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			Summary:      "show a submission and its latest execution",
			Fields:       []Field{submissionField},
		},
		{
			Group:        "submission",
			Action:       "enqueue",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/:id/enqueue",
			Summary:      "publish a JUDGING submission to the judge queue",
			Fields:       []Field{submissionField},
		},
		{
			Group:        "submission",
			Action:       "requeue",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/:id/requeue",
			Summary:      "send a FAILED submission back to the judge",
			Fields:       []Field{submissionField},
		},
		{
			Group:         "leaderboard",
			Action:        "show",
			Method:        "GET",
			PathTemplate:  "/api/v1/contests/:id/leaderboard",
			Summary:       "print the standings, optionally as_of=<RFC 3339>",
			ContestScoped: true,
			Fields: []Field{
				contestField,
				{Name: "as_of", Aliases: []string{"at"}, Prompt: "as_of", Type: FieldTime, Query: true},
			},
		},
		{
			Group:         "leaderboard",
			Action:        "partial",
			Method:        "GET",
			PathTemplate:  "/api/v1/contests/:id/leaderboard/partial",
			Summary:       "print one member's cell for one problem",
			ContestScoped: true,
			Fields: []Field{
				contestField,
				{Name: "member", Prompt: "member_id", Required: true, Query: true},
				{Name: "problem", Prompt: "problem_id", Required: true, Query: true},
			},
		},
		{
			Group:         "contest",
			Action:        "freeze",
			Method:        "POST",
			PathTemplate:  "/api/v1/contests/:id/freeze",
			Summary:       "freeze the public standings now",
			ContestScoped: true,
			Fields:        []Field{contestField},
		},
		{
			Group:         "contest",
			Action:        "unfreeze",
			Method:        "POST",
			PathTemplate:  "/api/v1/contests/:id/unfreeze",
			Summary:       "lift the freeze and reveal hidden submissions",
			ContestScoped: true,
			Fields:        []Field{contestField},
		},
		{
			Group:         "contest",
			Action:        "frozen",
			Method:        "GET",
			PathTemplate:  "/api/v1/contests/:id/frozen-submissions",
			Summary:       "list submissions hidden by the current freeze",
			ContestScoped: true,
			Fields:        []Field{contestField},
		},
		{
			Group:        "service",
			Action:       "health",
			Method:       "GET",
			PathTemplate: "/healthz",
			Summary:      "ping the service's dependencies",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Sorted returns the commands ordered by key, for help output.
func Sorted(commands map[string]Command) []Command {
	out := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}
	query, err := buildQuery(cmd.Fields, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if query != "" {
		path += "?" + query
	}
	return RequestSpec{Method: cmd.Method, Path: path}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	if strings.Contains(path, ":id") {
		value := strings.TrimSpace(params.Get("id"))
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, ":id", url.PathEscape(value))
	}
	return path, nil
}

func buildQuery(fields []Field, params Params) (string, error) {
	values := url.Values{}
	for _, field := range fields {
		if !field.Query {
			continue
		}
		value := strings.TrimSpace(params.Get(field.Name))
		if value == "" {
			if field.Required {
				return "", fmt.Errorf("missing parameter: %s", field.Name)
			}
			continue
		}
		if field.Type == FieldTime {
			t, err := ParseTime(value)
			if err != nil {
				return "", err
			}
			value = t.Format(time.RFC3339)
		}
		values.Set(field.Name, value)
	}
	return values.Encode(), nil
}
