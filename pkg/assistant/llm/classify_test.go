package llm

import (
	"context"
	"errors"
	"testing"
)

type fakeEngine struct {
	response *Response
	err      error
	calls    int
}

func (f *fakeEngine) Complete(_ context.Context, _ []Message, _ []ToolDefinition) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain json", `{"label":"tracking"}`, `{"label":"tracking"}`},
		{"json fence", "```json\n{\"label\":\"tracking\"}\n```", `{"label":"tracking"}`},
		{"bare fence", "```\n{\"label\":\"finance\"}\n```", `{"label":"finance"}`},
		{"surrounding whitespace", "  {\"label\":\"memory\"}  ", `{"label":"memory"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripFences(tc.in); got != tc.want {
				t.Errorf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("parses fenced response", func(t *testing.T) {
		engine := &fakeEngine{response: &Response{
			Content: "```json\n{\"label\": \"tracking\", \"confidence\": 0.92}\n```",
		}}

		c, err := Classify(context.Background(), engine, "prompt", "bebi 2L de água")
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if c.Label != "tracking" {
			t.Errorf("label = %q, want tracking", c.Label)
		}
		if c.Confidence != 0.92 {
			t.Errorf("confidence = %v, want 0.92", c.Confidence)
		}
	})

	t.Run("empty label is an error", func(t *testing.T) {
		engine := &fakeEngine{response: &Response{Content: `{"confidence": 0.5}`}}
		if _, err := Classify(context.Background(), engine, "prompt", "oi"); err == nil {
			t.Fatal("expected error for empty label")
		}
	})

	t.Run("engine error propagates", func(t *testing.T) {
		engine := &fakeEngine{err: errors.New("boom")}
		if _, err := Classify(context.Background(), engine, "prompt", "oi"); err == nil {
			t.Fatal("expected engine error")
		}
	})
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs(`{"value": 2.5, "metric_type": "water"}`)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if args["metric_type"] != "water" {
		t.Errorf("metric_type = %v", args["metric_type"])
	}

	if empty, err := ParseArgs(""); err != nil || len(empty) != 0 {
		t.Errorf("empty args: %v, %v", empty, err)
	}

	if _, err := ParseArgs("{invalid"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
