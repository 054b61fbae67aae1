package logx

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool   `split_words:"true" default:"false"`
	PrettyFormat bool   `split_words:"true" default:"false"`
	Level        string `split_words:"true"`
	Service      string `split_words:"true" default:"orderbot"`
}

var DefaultConfig = &Config{
	Service: "orderbot",
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

// level resolves Level first, then Debug. Unknown names fall back to info.
func (c *Config) level() zerolog.Level {
	if name := strings.TrimSpace(c.Level); name != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(name)); err == nil {
			return lvl
		}
	}
	if c.Debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func Init(opts ...Config) {
	InitWriter(os.Stdout, opts...)
}

// InitWriter is Init with an explicit sink for JSON output.
func InitWriter(w io.Writer, opts ...Config) {
	conf := safe(opts...)

	if conf.PrettyFormat {
		w = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) { cw.Out = w })
	}

	lc := zerolog.New(w).Level(conf.level()).With().Timestamp()
	if svc := strings.TrimSpace(conf.Service); svc != "" {
		lc = lc.Str("service", svc)
	}
	log.Logger = lc.Caller().Stack().Logger()

	// log.Ctx falls back to the global logger when a context carries none.
	zerolog.DefaultContextLogger = &log.Logger
}

// WithConversation returns ctx carrying a child of the global logger tagged with
// the conversation id and any extra string fields, given as key/value pairs.
func WithConversation(ctx context.Context, conversationID string, kv ...string) context.Context {
	lc := log.Logger.With().Str("conversation_id", conversationID)
	for i := 0; i+1 < len(kv); i += 2 {
		lc = lc.Str(kv[i], kv[i+1])
	}
	logger := lc.Logger()
	return logger.WithContext(ctx)
}
