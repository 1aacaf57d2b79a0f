package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/gpuprep/pkg/config"
)

func newManifestCommand() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the resolved provisioning manifest",
		Long: `Print the manifest after unifying any --manifest files over the built-in
defaults and applying the settings file. Validation errors are reported with
their file and line.`,
		Example: `  # Built-in manifest as JSON
  gpuprep manifest

  # With an override, as YAML
  gpuprep manifest -m cuda-12.4.cue --yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, manifest, err := loadConfig()
			if err != nil {
				var verrs config.ValidationErrors
				if errors.As(err, &verrs) {
					for _, v := range verrs {
						fmt.Fprintln(os.Stderr, v.String())
					}
					return &ExitError{Code: 1}
				}
				return err
			}

			export := config.ExportJSON
			if asYAML {
				export = config.ExportYAML
			}
			data, err := export(manifest)
			if err != nil {
				return fmt.Errorf("failed to export manifest: %w", err)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "output YAML instead of JSON")

	return cmd
}
