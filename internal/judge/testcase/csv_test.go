package testcase_test

import (
	"reflect"
	"testing"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/testcase"
	appErr "contestjudge/pkg/errors"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
		want []model.TestCase
	}{
		{
			name: "plain",
			data: "1 2,3\n4 5,9\n",
			want: []model.TestCase{{Input: "1 2", ExpectedOutput: "3"}, {Input: "4 5", ExpectedOutput: "9"}},
		},
		{
			name: "no trailing newline",
			data: "a,b",
			want: []model.TestCase{{Input: "a", ExpectedOutput: "b"}},
		},
		{
			name: "quoted multi-line fields",
			data: "\"1\n2\",\"x,y\"\r\n\"\"\"q\"\"\",\n",
			want: []model.TestCase{{Input: "1\n2", ExpectedOutput: "x,y"}, {Input: "\"q\"", ExpectedOutput: ""}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := testcase.Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %#v want %#v", got, tt.want)
			}
		})
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "leading blank line", data: "\n1,2\n"},
		{name: "blank line between records", data: "1,2\n\n3,4\n"},
		{name: "blank crlf line", data: "1,2\r\n\r\n3,4\r\n"},
		{name: "one field", data: "1\n"},
		{name: "three fields", data: "1,2,3\n"},
		{name: "bad quote", data: "\"1,2\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := testcase.Parse([]byte(tt.data))
			if !appErr.Is(err, appErr.TestCaseInvalid) {
				t.Fatalf("expected TestCaseInvalid, got %v", err)
			}
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []model.TestCase{
		{Input: "1 2", ExpectedOutput: "3"},
		{Input: "line1\nline2", ExpectedOutput: "a,b"},
		{Input: "say \"hi\"", ExpectedOutput: ""},
	}
	data, err := testcase.Serialize(cases)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := testcase.Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(got, cases) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}
