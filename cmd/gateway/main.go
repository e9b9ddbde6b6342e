package main

import (
	"log"
	"os"

	"github.com/NeuralTrust/gateguard/pkg/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:     version.AppName,
	Short:   "Inbound request security gateway",
	Version: version.Version,
	Long: `gateguard validates inbound HTTP traffic before it reaches an application.

Every request passes structural limits and per-identifier rate limiting.
Upload routes additionally run file validation, webhook routes run signature,
timestamp and replay checks.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if envFile == "" {
			envFile = os.Getenv("ENV_FILE")
		}
		if envFile == "" {
			envFile = ".env"
		}
		if err := godotenv.Load(envFile); err != nil {
			log.Println("no .env file found, using system environment variables")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config", "directory holding config.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading configuration")

	rootCmd.AddCommand(serveCmd, signCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
