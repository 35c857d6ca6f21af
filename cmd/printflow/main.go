// Printflow CLI — печать документов локально и управление jobs через HTTP API.
//
// Использование:
//
//	printflow [--config FILE] [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	run        Локальный run для документа
//	functions  Порядок выполнения функций
//	job        Управление jobs через API
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shaiso/Printflow/internal/cli"
	"github.com/shaiso/Printflow/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var (
		configPath string
		apiURL     string
		jsonOutput bool
	)

	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "printflow",
		Short:         "Printflow CLI — print pipeline tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default printflow.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API server URL (default api.url from config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	configFn := func() (*config.Config, error) { return config.Load(configPath) }
	clientFn := func() *cli.Client {
		if apiURL != "" {
			return cli.NewClient(apiURL)
		}
		url := "http://localhost:8080"
		if cfg, err := configFn(); err == nil && cfg.API.URL != "" {
			url = cfg.API.URL
		}
		return cli.NewClient(url)
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(configFn, outputFn),
		cli.NewFunctionsCmd(configFn, clientFn, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
