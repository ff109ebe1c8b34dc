package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/datenknoten/restic-orchestrator/internal/config"
	"github.com/datenknoten/restic-orchestrator/internal/errors"
)

var schemaYAML bool

// schemaCmd prints the JSON Schema a config entry is validated against
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the config JSON Schema",
	Long: `Print the JSON Schema every host entry is validated against.

The output is a starting point for --schema: edit it to tighten the rules
for your fleet and pass the file with --schema.

Examples:
  restic-orchestrator schema > host.schema.json
  restic-orchestrator schema --yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeSchema(cmd.OutOrStdout(), schemaYAML)
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaYAML, "yaml", false, "print YAML instead of JSON")
	rootCmd.AddCommand(schemaCmd)
}

func writeSchema(w io.Writer, asYAML bool) error {
	schema := config.Schema()

	if asYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(schema); err != nil {
			return errors.WrapWithCode(err, errors.ErrSchema, "Couldn't encode the schema", "")
		}
		return enc.Close()
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSchema, "Couldn't encode the schema", "")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
