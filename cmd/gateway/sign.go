package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/NeuralTrust/gateguard/pkg/config"
	"github.com/NeuralTrust/gateguard/pkg/infra/logger"
	"github.com/NeuralTrust/gateguard/pkg/webhook"
	"github.com/spf13/cobra"
)

var (
	signWebhook  string
	signData     string
	signDataFile string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print the headers a sender must attach to a webhook payload",
	Example: `  gateguard sign --webhook billing --data '{"event":"invoice.paid"}'
  gateguard sign --webhook billing --data-file payload.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(cmd.InOrStdin())
		if err != nil {
			return err
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		headers, err := signPayload(cfg, signWebhook, payload)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range slices.Sorted(maps.Keys(headers)) {
			_, _ = fmt.Fprintf(out, "%s: %s\n", name, headers[name])
		}
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&signWebhook, "webhook", "", "name of a webhook declared in config")
	signCmd.Flags().StringVar(&signData, "data", "", "payload to sign")
	signCmd.Flags().StringVar(&signDataFile, "data-file", "", "file holding the payload, - for stdin")
	_ = signCmd.MarkFlagRequired("webhook")
	signCmd.MarkFlagsMutuallyExclusive("data", "data-file")
}

func readPayload(stdin io.Reader) ([]byte, error) {
	switch {
	case signDataFile == "-":
		return io.ReadAll(stdin)
	case signDataFile != "":
		return os.ReadFile(signDataFile) // #nosec G304 -- operator supplied path
	case signData != "":
		return []byte(signData), nil
	default:
		return nil, errors.New("one of --data or --data-file is required")
	}
}

func signPayload(cfg *config.Config, name string, payload []byte) (map[string]string, error) {
	wh, ok := cfg.Webhooks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", webhook.ErrWebhookNotFound, name)
	}
	auth := webhook.NewAuthenticator(logger.NewConsoleLogger(), nil, webhook.Options{})
	err := auth.Register(name, webhook.Config{
		Secret:    wh.Secret,
		Algorithm: webhook.Algorithm(wh.Algorithm),
	})
	if err != nil {
		return nil, err
	}
	return auth.GenerateHeaders(name, payload)
}
