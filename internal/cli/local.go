package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Printflow/internal/config"
	"github.com/shaiso/Printflow/internal/functions"
	"github.com/shaiso/Printflow/internal/pipeline"
	"github.com/shaiso/Printflow/internal/telemetry"
)

// ConfigFunc лениво загружает конфигурацию после парсинга флагов.
type ConfigFunc func() (*config.Config, error)

// LocalRunResult — итог локального run.
type LocalRunResult struct {
	RunID    string            `json:"run_id"`
	Document string            `json:"document"`
	Executed []string          `json:"executed"`
	Canceled bool              `json:"canceled"`
	Progress pipeline.Progress `json:"progress"`
	Props    map[string]any    `json:"properties,omitempty"`
	Output   string            `json:"output"`
}

// NewRunCmd создаёт команду run: печать документа в этом процессе,
// без базы данных и брокера. Результат пишется в output.dir.
func NewRunCmd(configFn ConfigFunc, outputFn func() *Output) *cobra.Command {
	var (
		docPath string
		only    []string
		outDir  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the print pipeline locally for a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFn()
			if err != nil {
				return err
			}
			if outDir != "" {
				cfg.Output.Dir = outDir
			}

			out := outputFn()
			logger := localLogger(cmd, cfg)

			session, errs := cfg.Session(nil, logger)
			for _, e := range errs {
				out.Warn(e.Error())
			}

			doc, err := functions.LoadDocument(docPath)
			if err != nil {
				return err
			}

			master, err := session.NewRun(uuid.New(), doc, only)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if err := master.Start(ctx); err != nil {
				return err
			}

			result := LocalRunResult{
				RunID:    master.RunID().String(),
				Document: doc.ID.String(),
				Executed: master.Executed(),
				Canceled: master.IsCanceled(),
				Progress: master.Progress(),
				Props:    master.Properties(),
				Output:   functions.OutputPath(cfg.Output.Dir, master.Document()),
			}

			rows := make([][]string, len(result.Executed))
			for i, name := range result.Executed {
				rows[i] = []string{strconv.Itoa(i + 1), name}
			}
			out.Print([]string{"#", "FUNCTION"}, rows, result)

			if result.Canceled {
				out.Warn("run cancelled: " + result.Progress.Message)
			} else {
				out.Success(fmt.Sprintf("Document written: %s", result.Output))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&docPath, "document", "", "Path to document JSON (required)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Run only these functions")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (overrides output.dir)")
	cmd.MarkFlagRequired("document")

	return cmd
}

// NewFunctionsCmd создаёт команду functions: порядок выполнения функций.
// По умолчанию реестр строится из локальной конфигурации,
// с --remote запрашивается у API.
func NewFunctionsCmd(configFn ConfigFunc, clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		only   []string
		remote bool
	)

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "Show the resolved function order",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			headers := []string{"#", "ORDER", "NAME"}

			var fns []FunctionResponse
			if remote {
				list, err := clientFn().ListFunctions()
				if err != nil {
					return err
				}
				fns = list
			} else {
				cfg, err := configFn()
				if err != nil {
					return err
				}

				session, errs := cfg.Session(nil, localLogger(cmd, cfg))
				for _, e := range errs {
					out.Warn(e.Error())
				}

				plan, err := session.Plan(only)
				if err != nil {
					return err
				}
				fns = make([]FunctionResponse, len(plan))
				for i, fn := range plan {
					fns[i] = FunctionResponse{Name: fn.Name(), Order: fn.Order()}
				}
			}

			rows := make([][]string, len(fns))
			for i, fn := range fns {
				rows[i] = []string{strconv.Itoa(i + 1), strconv.Itoa(fn.Order), fn.Name}
			}
			out.Print(headers, rows, fns)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "Resolve only these functions")
	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the API server instead of the local config")

	return cmd
}

// localLogger пишет логи run в stderr, чтобы не смешивать их с выводом команды.
func localLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: telemetry.ParseLevel(cfg.Log.Level),
	}))
}
