package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/roomchat/cmd/roomchat/cmds"
	"github.com/go-go-golems/roomchat/pkg/config"
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	v := config.NewViper()
	rootCmd := &cobra.Command{
		Use:           "roomchat",
		Short:         "roomchat runs real-time chat rooms with an AI assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// reinitialize the logger now that --log-level and co are parsed
			return cmds.InitLogger(v, cmd.Flags())
		},
	}
	config.AddLoggingFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		cmds.NewServeCommand(v),
		cmds.NewClientCommand(),
	)
	cmds.AddModelsCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("roomchat failed")
		os.Exit(1)
	}
}
