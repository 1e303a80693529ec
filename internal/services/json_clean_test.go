// internal/services/json_clean_test.go
package services

import "testing"

func TestCleanJSONString(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"preamble", "Here you go: {\"a\":1} hope it helps", `{"a":1}`},
		{"array", "result: [1,2,3] done", `[1,2,3]`},
		{"brace in string", `{"a":"}"} trailing }`, `{"a":"}"}`},
		{"escaped quote", `{"a":"say \"hi\" }"}`, `{"a":"say \"hi\" }"}`},
		{"zero width", "\u200b{\"a\":1}\ufeff", `{"a":1}`},
		{"no json", "sorry", "sorry"},
		{"fence inside string", "```json\n{\"line\":\"type ``` then enter\"}\n```", "{\"line\":\"type ``` then enter\"}"},
		{"unfenced backticks", "{\"code\":\"```go\\nfmt.Println()\\n```\"}", "{\"code\":\"```go\\nfmt.Println()\\n```\"}"},
		{"prose then fence", "Sure:\n```JSON\n[1]\n```\nbye", `[1]`},
	}

	for _, c := range cases {
		if got := cleanJSONString(c.in); got != c.want {
			t.Fatalf("%s: 期望 %q，得到 %q", c.name, c.want, got)
		}
	}
}
