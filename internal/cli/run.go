package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/coordinator"
	"github.com/lqiu/newsbridge/internal/llm"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/pipeline"
	"github.com/lqiu/newsbridge/internal/sink"
)

var (
	runInstitutions []string
	runWindowStart  string
	runWindowDays   int
	runMaxResults   int
	runTimeout      time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full discovery-to-report job",
	Long: `Run executes one complete job: discover candidate links for each
requested institution, extract and verify articles, summarize and
localize the accepted ones, then rank everything into a single JSON
report.

Example:
  newsbridge run
  newsbridge run --institutions nyu,ubc --window-days 7
  newsbridge run --window-start 2025-08-18 --window-days 7 --max-results 10`,
	RunE: runJob,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runInstitutions, "institutions", nil, "institution IDs to process (default: all configured)")
	runCmd.Flags().StringVar(&runWindowStart, "window-start", "", "window start date YYYY-MM-DD (default: trailing window ending today)")
	runCmd.Flags().IntVar(&runWindowDays, "window-days", 0, "window length in days (default: from config)")
	runCmd.Flags().IntVar(&runMaxResults, "max-results", 20, "maximum reports in the final ranking")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 45*time.Minute, "overall job timeout")
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	base.Output.Verbose = verbose

	request := config.JobRequest{
		InstitutionIDs: runInstitutions,
		WindowStart:    runWindowStart,
		WindowDays:     runWindowDays,
		MaxResults:     runMaxResults,
	}
	cfg := request.Apply(base)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	institutions, err := selectInstitutions(cfg, request.InstitutionIDs)
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(llm.FromJobConfig(cfg.LLM))
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}

	logger := newLogger()
	runner := pipeline.NewRunner(logger, cfg, provider)
	if verbose {
		runner.OnTransition = func(tr model.Transition) {
			fmt.Fprintf(os.Stderr, "  %s %s: %s -> %s %s\n", tr.InstitutionID, tr.URL, tr.From, tr.To, tr.Reason)
		}
	}

	fmt.Fprintf(os.Stderr, "Window: %s\n", runner.Window())

	var (
		records  []*model.NewsItemRecord
		counters model.Counters
	)
	for _, inst := range institutions {
		outcome, err := runner.Run(ctx, inst)
		if err != nil {
			logger.Error("institution pass failed", "institution", inst.ID, "error", err)
			continue
		}
		records = append(records, outcome.Records...)
		counters.Discovered += outcome.Counters.Discovered
		counters.Processed += outcome.Counters.Processed
		counters.Rejected += outcome.Counters.Rejected
		counters.Failed += outcome.Counters.Failed
		if ctx.Err() != nil {
			logger.Warn("job interrupted", "after_institution", inst.ID)
			break
		}
	}

	coord := coordinator.New(logger, cfg, runner.Window())
	reports := coord.Merge(records, request.MaxResults)
	counters.Exported = len(reports)

	export := sink.NewExport(runner.Window(), counters, reports)
	fileSink := sink.NewJSONFileSink(cfg.Output.Dir)
	path, err := fileSink.Write(context.WithoutCancel(ctx), export)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	for _, report := range reports {
		if err := report.Record.Advance(model.StateExported); err != nil {
			logger.Error("state machine violation", "error", err)
		}
	}

	fmt.Fprintf(os.Stderr, "\nDiscovered: %d  Processed: %d  Rejected: %d  Failed: %d  Exported: %d\n",
		counters.Discovered, counters.Processed, counters.Rejected, counters.Failed, counters.Exported)
	fmt.Fprintf(os.Stderr, "Report: %s\n", path)
	return nil
}

// selectInstitutions resolves the requested IDs, defaulting to every
// configured institution. Unknown IDs fail the job up front rather than
// silently scanning nothing.
func selectInstitutions(cfg *config.Config, ids []string) ([]config.InstitutionProfile, error) {
	if len(ids) == 0 {
		return cfg.Institutions, nil
	}
	var out []config.InstitutionProfile
	for _, id := range ids {
		inst, ok := cfg.Institution(id)
		if !ok {
			return nil, fmt.Errorf("unknown institution %q (configured: %s)", id, institutionIDs(cfg))
		}
		out = append(out, inst)
	}
	return out, nil
}

func institutionIDs(cfg *config.Config) string {
	ids := ""
	for i, inst := range cfg.Institutions {
		if i > 0 {
			ids += ", "
		}
		ids += inst.ID
	}
	return ids
}
