package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/typegate/internal/policy"
	"github.com/ppiankov/typegate/internal/sim"
)

var (
	simAuditLog string
	simFormat   string
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policySchemaCmd)
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policySimulateCmd)
	policySimulateCmd.Flags().StringVar(&simAuditLog, "audit-log", "", "Audit log JSONL file to replay (required)")
	policySimulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
	_ = policySimulateCmd.MarkFlagRequired("audit-log")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Policy file operations",
}

var policySchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of policy.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := policy.Schema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a policy file and print its hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, hash, err := policy.LoadConfigWithHash(args[0])
		if err != nil {
			return err
		}
		p, err := cfg.BuildPolicy(hash)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries, %s\n", p.Len(), hash)
		return nil
	},
}

var policySimulateCmd = &cobra.Command{
	Use:   "simulate <policy>",
	Short: "Replay recorded decisions against a candidate policy",
	Long: "Re-evaluates every type in the audit log under the candidate policy\n" +
		"and lists the decisions that would change.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := sim.Simulate(simAuditLog, args[0])
		if err != nil {
			return err
		}
		if simFormat == "json" {
			out, err := sim.FormatJSON(result)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), sim.FormatText(result))
		return nil
	},
}
