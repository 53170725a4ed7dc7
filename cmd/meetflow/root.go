package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"meetflow/internal/config"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type cli struct {
	v          *viper.Viper
	configPath string
	cfg        config.Config
	configUsed string
}

func (c *cli) load() error {
	cfg, used, err := config.Load(config.WithViper(c.v), config.WithConfigPath(c.configPath))
	if err != nil {
		return err
	}
	c.cfg, c.configUsed = cfg, used
	return nil
}

func newRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "meetflow",
		Short: "Turn meeting transcripts into summaries and calendar actions",
		Long: fmt.Sprintf(`%s

meetflow runs a meeting transcript through a fixed pipeline: analysis,
entity research, calendar context, related meetings, action planning,
decision and risk review, calendar execution, and a closing summary.

%s
  meetflow run notes.txt                 # Process a transcript file
  cat notes.txt | meetflow run -         # Read from stdin
  meetflow run notes.txt --no-execute    # Plan only, leave the calendar alone
  meetflow slots --duration 30 --days 5  # List free slots
  meetflow serve --addr :8080            # Start the HTTP API`,
			bold("meetflow "+Version),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Config file (default ./meetflow.yaml or ~/.meetflow/meetflow.yaml)")
	flags.String("provider", "", "LLM provider: mock, openai, openrouter, deepseek, ollama")
	flags.StringP("model", "m", "", "LLM model")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("calendar", "", "Calendar backend: memory or sqlite")
	flags.String("calendar-db", "", "SQLite calendar path")
	bindFlags(c.v, root, map[string]string{
		"llm.provider":         "provider",
		"llm.model":            "model",
		"logging.level":        "log-level",
		"calendar.backend":     "calendar",
		"calendar.sqlite_path": "calendar-db",
	})

	root.AddCommand(newRunCommand(c))
	root.AddCommand(newServeCommand(c))
	root.AddCommand(newSlotsCommand(c))
	root.AddCommand(newVersionCommand())
	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		if flag != nil {
			_ = v.BindPFlag(key, flag)
		}
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "meetflow %s\n", Version)
		},
	}
}
