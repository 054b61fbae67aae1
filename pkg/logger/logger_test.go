package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func restoreGlobal(t *testing.T) {
	t.Helper()
	prev := log.Logger
	prevCtx := zerolog.DefaultContextLogger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.DefaultContextLogger = prevCtx
	})
}

func TestConfigLevel(t *testing.T) {
	tests := []struct {
		name string
		conf Config
		want zerolog.Level
	}{
		{name: "default", conf: Config{}, want: zerolog.InfoLevel},
		{name: "debug flag", conf: Config{Debug: true}, want: zerolog.DebugLevel},
		{name: "level wins", conf: Config{Debug: true, Level: "WARN"}, want: zerolog.WarnLevel},
		{name: "unknown level", conf: Config{Level: "loud"}, want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conf.level(); got != tt.want {
				t.Fatalf("level() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithConversationTagsContextLogger(t *testing.T) {
	restoreGlobal(t)

	var buf bytes.Buffer
	InitWriter(&buf, Config{Service: "orderbot-test"})

	ctx := WithConversation(context.Background(), "c-1", "mode", "plan")
	log.Ctx(ctx).Info().Msg("hello")
	log.Ctx(context.Background()).Debug().Msg("dropped")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["conversation_id"] != "c-1" || entry["mode"] != "plan" {
		t.Fatalf("entry = %v", entry)
	}
	if entry["service"] != "orderbot-test" {
		t.Fatalf("service = %v", entry["service"])
	}
	if entry["message"] != "hello" {
		t.Fatalf("message = %v", entry["message"])
	}
}
