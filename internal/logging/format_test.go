package logging

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type structPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPrettyJSONString_EmbeddedJSONSuffixIgnored(t *testing.T) {
	input := `400 Bad Request: {"error":"report_not_ready"}`
	if _, ok := prettyJSONString(input); ok {
		t.Fatalf("expected embedded JSON suffix to be ignored")
	}
}

func TestPrettyJSONString_StructAndError(t *testing.T) {
	pretty, ok := prettyJSONString(structPayload{Name: "abc", Count: 2})
	if !ok || !strings.HasPrefix(pretty, "{") {
		t.Fatalf("prettyJSONString(struct) = %q, %v", pretty, ok)
	}
	if _, ok := prettyJSONString(errors.New(`{"error":"bad"}`)); !ok {
		t.Fatalf("expected JSON error text to be rendered as a block")
	}
	if _, ok := prettyJSONString(250 * time.Millisecond); ok {
		t.Fatalf("durations should stay inline")
	}
}

func TestOrderedFieldKeys_PayloadJSONLast(t *testing.T) {
	fields := map[string]any{
		"status":    400,
		"response":  `{"error":"report_not_ready"}`,
		"report_id": "123",
		"params":    map[string]any{"reportID": "123"},
	}
	keys := orderedFieldKeys(fields)
	want := []string{"report_id", "status", "params", "response"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("orderedFieldKeys() = %v, want %v", keys, want)
	}
}

func TestFormatEventLine(t *testing.T) {
	event := Event{
		Time:    time.Date(2024, 1, 1, 9, 30, 15, 250*int(time.Millisecond), time.UTC),
		Level:   slog.LevelWarn,
		Message: "report_not_ready: Report not ready",
		Fields:  map[string]any{"report_id": "123", "status": 400},
	}
	want := "09:30:15.250 [WARN] report_not_ready: Report not ready report_id=123 status=400\n"
	if got := FormatEventLine(event); got != want {
		t.Fatalf("FormatEventLine() = %q, want %q", got, want)
	}
}

func TestAttrsToMap_RedactsSecrets(t *testing.T) {
	fields := attrsToMap([]slog.Attr{
		Field("username", "bob:acme"),
		Field("secret", "hunter2"),
		slog.Group("auth", Field("password_digest", "abc")),
	})
	if fields["secret"] != redacted {
		t.Fatalf("secret = %v, want redacted", fields["secret"])
	}
	group, ok := fields["auth"].(map[string]any)
	if !ok || group["password_digest"] != redacted {
		t.Fatalf("auth group = %#v", fields["auth"])
	}
	if fields["username"] != "bob:acme" {
		t.Fatalf("username = %v", fields["username"])
	}
}

func TestFormatHTTPPayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "  ", want: "<empty>"},
		{name: "plain", in: "OK", want: "OK"},
		{name: "quoted", in: `"OK"`, want: "OK"},
		{name: "object", in: `{"reportID":1}`, want: "{\n  \"reportID\": 1\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatHTTPPayload([]byte(tt.in)); got != tt.want {
				t.Fatalf("FormatHTTPPayload(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", maxPayloadLogBytes+10)
	if got := FormatHTTPPayload([]byte(long)); !strings.HasSuffix(got, "...(truncated)") {
		t.Fatalf("expected oversized payload to be clipped")
	}
}
