package cmds

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// InitLogger configures the global zerolog logger from --log-level,
// --log-format and --with-caller.
func InitLogger(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return errors.Wrap(err, "bind logging flags")
	}
	zerolog.SetGlobalLevel(parseZerologLevel(v.GetString("log-level")))

	var logger zerolog.Logger
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logger = zerolog.New(os.Stderr)
	case "", "console":
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:     os.Stderr,
			NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
		})
	default:
		return errors.Errorf("unknown log-format %q", v.GetString("log-format"))
	}
	ctx := logger.With().Timestamp()
	if v.GetBool("with-caller") {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}

// parseZerologLevel converts a string level into zerolog.Level with a safe default
func parseZerologLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "info":
		fallthrough
	default:
		return zerolog.InfoLevel
	}
}
