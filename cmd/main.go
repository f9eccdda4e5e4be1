package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/victornm/quizbox/internal/config"
	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/question"
	"github.com/victornm/quizbox/internal/server"
)

// envPrefix namespaces config overrides, e.g. QUIZBOX_HTTP_PORT.
const envPrefix = "QUIZBOX"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Load .env failed: %v", err)
	}

	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "quizbox",
		Short:         "Turn-based multiplayer quiz sessions over HTTP, websocket and gRPC.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(newServeCmd(), newQuestionsCmd())
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}

func newServeCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the quiz server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(path)
			if err != nil {
				return err
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

			s, err := server.Init(c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}

			go s.Start()

			<-shutdown
			s.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "config file, defaults to $CONFIG_PATH")

	return cmd
}

func newQuestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Inspect question files",
	}

	var categories []string
	check := &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a question file and count questions per category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bank := question.NewBank()
			n, err := bank.Load(context.Background(), question.File{Path: args[0]})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d questions\n", n)
			for _, c := range bank.Categories() {
				fmt.Fprintf(out, "  %s\n", c)
			}

			want := make([]domain.Category, 0, len(categories))
			for _, c := range categories {
				want = append(want, domain.Category(c))
			}
			if missing := bank.Missing(want); len(missing) > 0 {
				return fmt.Errorf("no questions for categories %v", missing)
			}
			return nil
		},
	}
	check.Flags().StringSliceVar(&categories, "categories", nil, "categories that must have at least one question")

	cmd.AddCommand(check)
	return cmd
}

func loadConfig(path string) (server.Config, error) {
	var c server.Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		return c, fmt.Errorf("no config file: pass --config or set CONFIG_PATH")
	}

	if err := config.Load(path, &c, config.WithEnvPrefix(envPrefix)); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
