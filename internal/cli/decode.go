package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/typegate/internal/audit"
	"github.com/ppiankov/typegate/internal/decode"
	"github.com/ppiankov/typegate/internal/engine"
)

var (
	decodeFormat   string
	decodePolicy   string
	decodeAuditLog string
	decodeInsecure bool
)

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVar(&decodeFormat, "format", "", "Payload format (native|json|yaml)")
	decodeCmd.Flags().StringVar(&decodePolicy, "policy", "", "Path to policy YAML (default ~/.typegate/policy.yaml)")
	decodeCmd.Flags().StringVar(&decodeAuditLog, "audit-log", "", "Path to audit log JSONL file")
	decodeCmd.Flags().BoolVar(&decodeInsecure, "insecure", false, "Decode without the allow-list (runs gadget hooks)")
	decodeCmd.MarkFlagRequired("format")
}

var decodeCmd = &cobra.Command{
	Use:   "decode <file|->",
	Short: "Decode a payload file through the admission gate",
	Long: "Reads a payload from a file, or stdin with \"-\", and decodes it.\n" +
		"Every type the payload names is checked before it is constructed.\n" +
		"Exit code 1 if any type is rejected or the payload is invalid.",
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	format, err := decode.ParseFormat(decodeFormat)
	if err != nil {
		return err
	}
	raw, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	mode := engine.ModeSecure
	if decodeInsecure {
		mode = engine.ModeInsecure
	}
	eng, err := engine.New(engine.Config{
		PolicyPath:    decodePolicy,
		AuditLogPath:  decodeAuditLog,
		AllowInsecure: decodeInsecure,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	out, err := eng.Decode(cmd.Context(), engine.NewMeta(audit.SourceCLI), format, mode, raw)
	if err != nil {
		var rejected *decode.TypeRejectedError
		if errors.As(err, &rejected) {
			fmt.Fprintf(cmd.OutOrStdout(), "REJECT  %s  %s\n", rejected.Candidate, rejected.Reason)
			return &exitError{code: 1}
		}
		return err
	}

	value := out.Result.Type
	if s, ok := out.Result.Value.(fmt.Stringer); ok {
		value = s.String()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deserialized: %s\n", value)
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}
