package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/audit"
	"github.com/ppiankov/typegate/internal/client"
	"github.com/ppiankov/typegate/internal/engine"
	"github.com/ppiankov/typegate/internal/scenario"
)

var (
	checkPolicy   string
	checkRemote   string
	checkAuditLog string
	checkFormat   string
	checkScenario string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkPolicy, "policy", "", "Path to policy YAML (default ~/.typegate/policy.yaml)")
	checkCmd.Flags().StringVar(&checkRemote, "remote", "", "Ask a typegate gRPC server at this address instead of a local policy")
	checkCmd.Flags().StringVar(&checkAuditLog, "audit-log", "", "Path to audit log JSONL file")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Run scenario assertion files matching this glob instead of checking arguments")
}

var checkCmd = &cobra.Command{
	Use:   "check <type>...",
	Short: "Evaluate type identifiers against the policy",
	Long: "Prints the admission decision for each identifier.\n\n" +
		"Exit code 0 if every identifier is admitted, 1 if any is rejected.\n" +
		"With --remote, an unreachable server rejects everything.\n" +
		"With --scenario, exit code 1 if any assertion fails.",
	Args: func(cmd *cobra.Command, args []string) error {
		if checkScenario != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runCheck,
}

type checkLine struct {
	admission.Decision
	PolicyHash string `json:"policy_hash,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	if checkScenario != "" {
		return runScenarios(cmd.OutOrStdout())
	}

	var lines []checkLine

	if checkRemote != "" {
		c, err := client.New(checkRemote)
		if err != nil {
			return err
		}
		defer c.Close()
		for _, candidate := range args {
			ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
			d, hash := c.EvaluateContext(ctx, candidate)
			cancel()
			lines = append(lines, checkLine{Decision: d, PolicyHash: hash})
		}
	} else {
		eng, err := engine.New(engine.Config{PolicyPath: checkPolicy, AuditLogPath: checkAuditLog, Logger: logger})
		if err != nil {
			return err
		}
		defer eng.Close()
		for _, candidate := range args {
			res := eng.Check(engine.NewMeta(audit.SourceCLI), candidate)
			lines = append(lines, checkLine{Decision: res.Decision, PolicyHash: res.PolicyHash})
		}
	}

	if err := printCheck(cmd.OutOrStdout(), lines, checkFormat); err != nil {
		return err
	}
	for _, l := range lines {
		if !l.Admitted() {
			return &exitError{code: 1}
		}
	}
	return nil
}

func printCheck(w io.Writer, lines []checkLine, format string) error {
	if format == "json" {
		out, err := json.MarshalIndent(lines, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		return nil
	}
	for _, l := range lines {
		if l.Admitted() {
			fmt.Fprintf(w, "ADMIT   %s\n", l.Candidate)
			continue
		}
		fmt.Fprintf(w, "REJECT  %s  [%s] %s\n", l.Candidate, l.Kind, l.Reason)
	}
	return nil
}

func runScenarios(w io.Writer) error {
	files, err := filepath.Glob(checkScenario)
	if err != nil {
		return fmt.Errorf("invalid scenario glob: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no scenario files match %s", checkScenario)
	}

	var results []*scenario.RunResult
	failed := false
	for _, f := range files {
		r, err := scenario.LoadAndRun(f, checkPolicy)
		if err != nil {
			return err
		}
		if r.Failed > 0 {
			failed = true
		}
		results = append(results, r)
	}

	if checkFormat == "json" {
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	} else {
		fmt.Fprint(w, scenario.FormatText(results))
	}

	if failed {
		return &exitError{code: 1}
	}
	return nil
}
