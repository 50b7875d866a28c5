// Tramita CLI — инструмент командной строки для управления
// задачами автоматизации через HTTP API.
//
// Использование:
//
//	tramita [--api-url URL] [--token TOKEN] [--json] <command> [flags]
//
// Команды:
//
//	task   Управление задачами
//	stats  Статистика задач
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgarciamx/Tramita/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var token string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "tramita",
		Short:         "Tramita CLI — web automation task tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("TRAMITA_TOKEN"), "API token (default: $TRAMITA_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, token) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
