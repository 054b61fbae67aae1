package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanpawarit/chative-commerce/agent/api"
	configx "github.com/tanpawarit/chative-commerce/pkg/config"
	_ "github.com/tanpawarit/chative-commerce/pkg/logger/autoload"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "orderbot",
		Short:         "Conversational ordering assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile != "" {
				configx.SetEnvFile(envFile)
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file")

	root.AddCommand(newServeCmd(), newChatCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP turn API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			httpCfg, err := configx.New[api.Config]("HTTP")
			if err != nil {
				return fmt.Errorf("load http config: %w", err)
			}
			opts, err := app.apiOptions(*httpCfg)
			if err != nil {
				return err
			}
			server, err := api.NewServer(*httpCfg, app.orchestrator, opts...)
			if err != nil {
				return err
			}
			return server.ListenAndServe(ctx)
		},
	}
}

func newChatCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "conversation %s, ctrl-d to quit\n", conversationID)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}
				reply, err := app.orchestrator.HandleMessage(ctx, conversationID, text)
				if err != nil {
					log.Warn().Err(err).Str("conversation_id", conversationID).Msg("turn failed")
				}
				fmt.Fprintln(out, reply)
			}
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "local", "conversation id")
	return cmd
}
