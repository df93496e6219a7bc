package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mmutlucod/realtime-call-app/internal/config"
)

var (
	_v      = viper.New()
	_config *config.Client
)

//RootCmd is the root command for callctl
var RootCmd = &cobra.Command{
	Use:               "callctl",
	Short:             "Headless client for the call signaling server",
	TraverseChildren:  true,
	PersistentPreRunE: loadConfig,
}

func init() {
	AddClientFlags(RootCmd.PersistentFlags())
	RootCmd.AddCommand(
		NewListCmd(),
		NewCallCmd(),
		NewAnswerCmd(),
	)
}

//AddClientFlags adds the flags shared by every subcommand. Defaults live in
//config.SetClientDefaults, so the flag values here only count when set.
func AddClientFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML config file")
	fs.String("log", "info", "debug, info, warn, error")

	fs.StringP("server", "s", "", "Signaling WebSocket URL")
	fs.String("id", "", "Identity to join as")
	fs.String("name", "", "Display name (defaults to the id)")
	fs.String("push-token", "", "Push address registered after joining")

	fs.Int("reconnect-attempts", 0, "Signaling dial attempts before giving up")
	fs.Duration("reconnect-delay", 0, "Delay between signaling dial attempts")
	fs.Duration("disconnect-grace", 0, "How long a disconnected call may recover on its own")
	fs.Int("max-restarts", 0, "ICE restarts before a call is declared failed")
	fs.Duration("restart-timeout", 0, "How long one ICE restart may take to reconnect")
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

func loadConfig(cmd *cobra.Command, args []string) error {
	config.SetClientDefaults(_v)
	_v.SetDefault("log", "info")

	if err := bindFlags(_v, cmd.Flags()); err != nil {
		return err
	}

	_v.SetEnvPrefix("CALLCTL")
	_v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	_v.AutomaticEnv()

	if file := _v.GetString("config"); file != "" {
		_v.SetConfigFile(file)
		if err := _v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}

	setupLogger(_v.GetString("log"))

	cfg, err := config.LoadClient(_v)
	if err != nil {
		return err
	}
	_config = cfg

	log.Debug().
		Str("module", "callctl").
		Str("server", cfg.Server).
		Str("id", cfg.ID).
		Str("name", cfg.Name).
		Bool("video", cfg.Video).
		Int("reconnect_attempts", cfg.ReconnectAttempts).
		Dur("reconnect_delay", cfg.ReconnectDelay).
		Dur("disconnect_grace", cfg.DisconnectGrace).
		Int("max_restarts", cfg.MaxRestarts).
		Dur("restart_timeout", cfg.RestartTimeout).
		Int("ice_servers", len(cfg.ICEServers)).
		Msg("RUN")
	return nil
}

// bindFlags registers every flag under its config key: reconnect-attempts
// becomes reconnect_attempts.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return err
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
