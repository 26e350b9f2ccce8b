package main

import (
	"fmt"
	"os"
	"sort"

	"chat-cli/internal/app"
	"chat-cli/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

func main() {
	root := &cobra.Command{
		Use:     "chatcli",
		Short:   "Multi-provider LLM chat with checkpointed sessions",
		Long:    "chatcli is a terminal chat client for multiple LLM providers.\n\nLong conversations are compacted into checkpoint summaries so they keep\nfitting the model's context window; long-running providers are polled in\nthe background with cancellable jobs.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}

			sessionID, _ := cmd.Flags().GetString("session")
			providerName, _ := cmd.Flags().GetString("provider")
			model, _ := cmd.Flags().GetString("model")

			if sessionID == "" {
				if providerName == "" {
					providerName = application.Config.DefaultProvider
				}
				if model == "" {
					model = defaultModelFor(application.Config, providerName)
				}
				sess, err := application.Store.CreateSession(providerName, model)
				if err != nil {
					return err
				}
				sessionID = sess.ID
			} else if _, ok := application.Store.Session(sessionID); !ok {
				return fmt.Errorf("session %s not found", sessionID)
			}

			p := tea.NewProgram(tui.New(application, sessionID), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	root.Flags().String("session", "", "Resume an existing session by id")
	root.Flags().String("provider", "", "Provider for a new session (defaults to config)")
	root.Flags().String("model", "", "Model for a new session (defaults to provider config)")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			summaries := application.Store.ListSummaries()
			sort.Slice(summaries, func(i, j int) bool {
				return summaries[i].LastActivity.After(summaries[j].LastActivity)
			})
			if len(summaries) == 0 {
				fmt.Println("no stored sessions")
				return nil
			}
			for _, s := range summaries {
				flags := ""
				if s.Starred {
					flags += "★"
				}
				if s.Closed {
					flags += " (closed)"
				}
				title := s.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s  %-40s  %s/%s  %d msgs  %s%s\n",
					s.ID[:8], title, s.Provider, s.Model, s.MessageCount,
					s.LastActivity.Format("2006-01-02 15:04"), flags)
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a stored session (refused while starred)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			return application.Store.DeleteSession(args[0])
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration path and providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.DefaultConfigPath()
			cfg, err := app.LoadConfig(path)
			if err != nil {
				return err
			}
			fmt.Printf("config: %s\n", path)
			fmt.Printf("storage: %s\n", cfg.Storage)
			for _, p := range cfg.Providers {
				mode := "sync"
				if p.Queued {
					mode = "queued"
				}
				key := "unset"
				if p.ResolveAPIKey() != "" {
					key = "set"
				}
				fmt.Printf("provider %s: model=%s mode=%s api_key=%s\n", p.Name, p.Model, mode, key)
			}
			return nil
		},
	}

	root.AddCommand(sessionsCmd, deleteCmd, configCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApplication() (*app.Application, error) {
	cfg, err := app.LoadConfig(app.DefaultConfigPath())
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(os.Stderr)
	return app.NewApplication(cfg, logger)
}

func defaultModelFor(cfg app.Config, provider string) string {
	for _, p := range cfg.Providers {
		if p.Name == provider {
			return p.Model
		}
	}
	return ""
}
