// Package main provides the openaitools binary entry point, a small CLI for
// exercising the backoff-wrapped chat-completion and embedding calls against
// an OpenAI-compatible backend.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/c360studio/openaitools/client"
	"github.com/c360studio/openaitools/config"
)

const (
	Version = "0.1.0"
	appName = "openaitools"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		apiBase    string
		model      string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Backoff-wrapped OpenAI API calls",
		Long: `openaitools issues chat-completion and embedding requests against an
OpenAI-compatible backend, retrying rate-limit responses with randomized
exponential backoff.

Configuration is resolved from defaults, an optional YAML file, the
OPENAI_API_BASE / OPENAI_API_KEY / BACKEND_TYPE environment variables, and
finally command-line flags.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&apiBase, "api-base", "", "API base URL override")
	cmd.PersistentFlags().StringVar(&model, "model", "", "Model to use")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	newClient := func() (*client.Client, *config.Config, error) {
		setupLogging(logLevel)
		cfg, err := loadConfig(configPath, apiBase)
		if err != nil {
			return nil, nil, err
		}
		c, err := client.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, cfg, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "embed [text...]",
		Short: "Fetch embedding vectors for one or more texts",
		Long: `Fetches embeddings for the given texts concurrently and prints the
vectors as JSON, in input order. Reads newline-separated texts from stdin
when no arguments are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := newClient()
			if err != nil {
				return err
			}

			texts := args
			if len(texts) == 0 {
				texts, err = readLines(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			if len(texts) == 0 {
				return fmt.Errorf("no input texts")
			}

			embeddingModel := model
			if embeddingModel == "" {
				embeddingModel = cfg.API.EmbeddingModel
			}
			models := make([]string, len(texts))
			for i := range models {
				models[i] = embeddingModel
			}

			vectors, err := c.GetMultipleEmbeddings(cmd.Context(), texts, models)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			return enc.Encode(vectors)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "complete <prompt>",
		Short: "Request a chat completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient()
			if err != nil {
				return err
			}
			if model == "" {
				return fmt.Errorf("--model is required for completions")
			}

			resp, err := c.CreateChatCompletionContext(cmd.Context(), openai.ChatCompletionRequest{
				Model: model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleUser, Content: strings.Join(args, " ")},
				},
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("response contained no choices")
			}

			fmt.Println(resp.Choices[0].Message.Content)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

// loadConfig layers defaults, the optional config file, environment
// variables and flag overrides, in that order.
func loadConfig(configPath, apiBase string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if apiBase != "" {
		cfg.API.Base = apiBase
	}
	return cfg, nil
}

func setupLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func readLines(f *os.File) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
