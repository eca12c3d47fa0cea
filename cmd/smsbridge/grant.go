package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Cypherspark/sms-bridge/internal/config"
	"github.com/Cypherspark/sms-bridge/internal/permission"
)

// grantsPath resolves the grants file from the flag, falling back to config.
func grantsPath(flags *rootFlags, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return "", err
	}
	return cfg.Permission.GrantsFile, nil
}

// newDecideCmd builds "grant" or "deny". Both answer a pending prompt and
// record the decision for later checks.
func newDecideCmd(flags *rootFlags, granted bool, stdout, _ io.Writer) *cobra.Command {
	var file string
	use, short, verb := "deny", "Deny a permission in the grants file", "denied"
	if granted {
		use, short, verb = "grant", "Grant a permission in the grants file", "granted"
	}
	cmd := &cobra.Command{
		Use:   use + " [permission]",
		Short: short,
		Long: short + `.

The permission defaults to ` + permission.ReadSMS + `. A running server
watching the same file resolves any pending prompt immediately.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			perm := permission.ReadSMS
			if len(args) == 1 {
				perm = args[0]
			}
			path, err := grantsPath(flags, file)
			if err != nil {
				return err
			}
			if err := permission.Decide(path, perm, granted); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s %s (%s)\n", verb, perm, path) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "grants-file", "", "grants file (default from config)")
	return cmd
}

func newPermissionsCmd(flags *rootFlags, stdout, _ io.Writer) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Print granted, denied and pending permissions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := grantsPath(flags, file)
			if err != nil {
				return err
			}
			g, err := permission.ReadGrants(path)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(stdout)
			enc.SetIndent(2)
			if err := enc.Encode(&g); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&file, "grants-file", "", "grants file (default from config)")
	return cmd
}
