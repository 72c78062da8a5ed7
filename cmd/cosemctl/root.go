package main

import (
	"fmt"
	"strings"

	"github.com/pion/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "COSEM"

// Persistent flag names, also the viper keys.
const (
	flagModel    = "model"
	flagState    = "state"
	flagCounter  = "counter"
	flagLogLevel = "log-level"
)

type app struct {
	v       *viper.Viper
	loggers *logging.DefaultLoggerFactory
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "cosemctl",
		Short:         "Work with a COSEM logical device",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String(flagModel, "meter.yaml", "device model file")
	flags.String(flagState, "", "object state file (empty = state is not kept)")
	flags.String(flagCounter, "", "invocation counter file (empty = counter from the device model)")
	flags.String(flagLogLevel, "warn", "log level: disabled, error, warn, info, debug, trace")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	root.AddCommand(
		a.decodeCommand(),
		a.getCommand(),
		a.setCommand(),
		a.actionCommand(),
		a.describeCommand(),
		a.tickCommand(),
		a.runCommand(),
		a.cipherCommand(),
		a.decipherCommand(),
		a.hlsCommand(),
	)
	return root
}

var logLevels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

func (a *app) init(cmd *cobra.Command) error {
	name := strings.ToLower(a.v.GetString(flagLogLevel))
	level, ok := logLevels[name]
	if !ok {
		return fmt.Errorf("unknown log level %q", name)
	}
	a.loggers = logging.NewDefaultLoggerFactory()
	a.loggers.DefaultLogLevel = level
	a.loggers.Writer = cmd.ErrOrStderr()
	return nil
}
