package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/typegate/internal/decode"
	"github.com/ppiankov/typegate/internal/javaser"
	"github.com/ppiankov/typegate/internal/sample"
)

var (
	payloadFormat string
	payloadType   string
	payloadName   string
	payloadValue  int32
	payloadOutput string
)

func init() {
	rootCmd.AddCommand(payloadCmd)
	payloadCmd.Flags().StringVar(&payloadFormat, "format", "", "Payload format (native|json|yaml)")
	payloadCmd.Flags().StringVar(&payloadType, "type", sample.SafeClassName, "Type identifier the payload names")
	payloadCmd.Flags().StringVar(&payloadName, "name", "demo", "Value of the name field")
	payloadCmd.Flags().Int32Var(&payloadValue, "value", 1, "Value of the value field")
	payloadCmd.Flags().StringVarP(&payloadOutput, "output", "o", "", "Write to file instead of stdout")
	payloadCmd.MarkFlagRequired("format")
}

var payloadCmd = &cobra.Command{
	Use:   "payload",
	Short: "Emit a demo payload naming a type",
	Long: "Builds a payload in the chosen format that names --type with name and\n" +
		"value fields. Use --type " + sample.ProbeClassName + " to build the\n" +
		"gadget payload the secure decoders must refuse.",
	RunE: runPayload,
}

func runPayload(cmd *cobra.Command, args []string) error {
	format, err := decode.ParseFormat(payloadFormat)
	if err != nil {
		return err
	}
	data, err := buildPayload(format, payloadType, payloadName, payloadValue)
	if err != nil {
		return err
	}
	if payloadOutput != "" {
		if err := os.WriteFile(payloadOutput, data, 0644); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(data), payloadOutput)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// buildPayload renders one object of typeName. The probe type carries its
// command in the name field.
func buildPayload(format decode.Format, typeName, name string, value int32) ([]byte, error) {
	fields := map[string]any{"name": name, "value": value}
	if typeName == sample.ProbeClassName {
		fields = map[string]any{"command": name}
	}

	switch format {
	case decode.FormatNative:
		return javaser.Encode(&javaser.Object{Class: typeName, Fields: fields})
	case decode.FormatJSON:
		doc := map[string]any{decode.DefaultTypeProperty: typeName}
		for k, v := range fields {
			doc[k] = v
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case decode.FormatYAML:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!" + typeName}
		for _, k := range []string{"command", "name", "value"} {
			v, ok := fields[k]
			if !ok {
				continue
			}
			tag := "!!str"
			if _, isInt := v.(int32); isInt {
				tag = "!!int"
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: fmt.Sprint(v)},
			)
		}
		return yaml.Marshal(node)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}
