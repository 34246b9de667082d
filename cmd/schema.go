package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the deal custom-field schema discovered from the CRM as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		client, err := newBitrixClient(cfg.Bitrix)
		if err != nil {
			return err
		}

		s, err := schema.New(client).Resolve(cmd.Context())
		if err != nil {
			return err
		}
		return writeSchemaYAML(os.Stdout, s)
	},
}

func writeSchemaYAML(w io.Writer, s *model.FieldSchema) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return eris.Wrap(err, "encode schema")
	}
	return enc.Close()
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
