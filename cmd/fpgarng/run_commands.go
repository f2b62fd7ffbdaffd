package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Thiagojm/fpga_rng_linux/runner"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		binary    string
		provider  string
		apiURL    string
		numTokens int
		runsDir   string
		runDir    string
		noReport  bool
	)
	cmd := &cobra.Command{
		Use:   "run <model> <prompt>",
		Short: "Run the inference binary once with the selected RNG provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := ctx.configValue().Runner
			flags := cmd.Flags()
			cfg := runner.RunConfig{
				Binary:    rc.Binary,
				Model:     args[0],
				Prompt:    args[1],
				Provider:  rc.Provider,
				APIURL:    rc.APIURL,
				NumTokens: rc.ContextSize,
				RunsRoot:  rc.RunsDir,
				RunDir:    runDir,
				Report:    !noReport,
			}
			if flags.Changed("binary") {
				cfg.Binary = binary
			}
			if flags.Changed("provider") {
				cfg.Provider = provider
			}
			if flags.Changed("api-url") {
				cfg.APIURL = apiURL
			}
			if flags.Changed("num-tokens") {
				cfg.NumTokens = numTokens
			}
			if flags.Changed("runs-dir") {
				cfg.RunsRoot = runsDir
			}

			res, err := runner.Run(cmd.Context(), cfg, ctx.log())
			if res != nil {
				printRunResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&binary, "binary", "", "Inference binary (default from config)")
	flags.StringVar(&provider, "provider", "", "RNG provider: uniform, normal or external-api")
	flags.StringVar(&apiURL, "api-url", "", "Random endpoint for the external-api provider")
	flags.IntVarP(&numTokens, "num-tokens", "n", 0, "Context size passed as -c")
	flags.StringVar(&runsDir, "runs-dir", "", "Parent directory for run directories")
	flags.StringVar(&runDir, "run-dir", "", "Use this run directory instead of a generated one")
	flags.BoolVar(&noReport, "no-report", false, "Skip the xlsx distribution report")
	return cmd
}

func printRunResult(out io.Writer, res *runner.RunResult) {
	var s summary
	s.add("Run directory", res.RunDir)
	s.add("Output", res.OutputFile)
	s.add("Log", res.LogFile)
	s.add("Exit code", fmt.Sprint(res.ExitCode))
	s.add("Context limit reached", yesNo(res.ContextExceeded))
	s.add("RNG values", humanize.Comma(int64(res.Values)))
	s.add("Duration", res.Duration.Round(time.Millisecond).String())
	if res.ReportFile != "" {
		s.add("Report", res.ReportFile)
	}
	fmt.Fprintln(out, renderSummary("Run", s))
}

func newParallelCommand(ctx *commandContext) *cobra.Command {
	var (
		executable string
		model      string
		prompts    string
		parallel   int
		nPredict   int
		output     string
		results    string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "parallel",
		Short: "Run the parallel inference binary over a prompts file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := ctx.configValue().Runner
			flags := cmd.Flags()
			cfg := runner.ParallelConfig{
				Executable:  rc.ParallelBinary,
				Model:       model,
				Prompts:     prompts,
				Parallel:    rc.Parallel,
				NPredict:    rc.NPredict,
				Output:      output,
				ResultsJSON: results,
				Progress:    cmd.ErrOrStderr(),
				Verbose:     verbose,
			}
			if flags.Changed("executable") {
				cfg.Executable = executable
			}
			if flags.Changed("parallel") {
				cfg.Parallel = parallel
			}
			if flags.Changed("n-predict") {
				cfg.NPredict = nPredict
			}

			res, err := runner.RunParallel(cmd.Context(), cfg, ctx.log())
			if err != nil {
				return err
			}
			s := summary{
				{"Prompts", humanize.Comma(int64(res.PromptsProcessed))},
				{"Completed", humanize.Comma(int64(res.PromptsCompleted))},
				{"Parallel clients", fmt.Sprint(res.ParallelClients)},
				{"Total time", fmt.Sprintf("%.2fs", res.TotalTime)},
				{"Prompts/s", fmt.Sprintf("%.2f", res.PromptsPerSecond)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary("Parallel run", s))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&executable, "executable", "", "Parallel inference binary (default from config)")
	flags.StringVarP(&model, "model", "m", "", "Model file")
	flags.StringVarP(&prompts, "file", "f", "", "Prompts file, one prompt per line")
	flags.IntVar(&parallel, "parallel", 0, "Number of parallel clients (default from config)")
	flags.IntVar(&nPredict, "n-predict", 0, "Tokens to predict per prompt (default from config)")
	flags.StringVarP(&output, "output", "o", "", "Output file passed to the binary")
	flags.StringVar(&results, "results", "", "Write a JSON summary to this path")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every line of binary output")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
