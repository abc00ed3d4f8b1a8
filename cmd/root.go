package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docchat/src/infrastructure/log"
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Document-grounded chat service",
	Long: `docchat indexes uploaded documents into an in-memory embedding index
and answers questions grounded in the retrieved chunks, keeping chat
history per session.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("log.development") {
			log.UseDevelopmentLogger()
		}
	},
}

func init() {
	settingDefaultConfig()
}

// Execute runs the root command. It is called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
