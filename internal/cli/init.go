package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/podguard/internal/config"
	"github.com/ppiankov/podguard/internal/denylist"
	"github.com/ppiankov/podguard/internal/policy"
)

var (
	initDir   string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "Config directory (default ~/.podguard)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap podguard configuration",
	Long: `Creates the config directory with a service config, the built-in
pod security policies and the default network denylist.

The generated config.yaml points at the other files and keeps durable
state (SQLite database, audit log, approval queue) in the same directory.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := initConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	policiesPath := filepath.Join(configDir, "policies.yaml")
	denylistPath := filepath.Join(configDir, "denylist.yaml")

	cfg := config.Defaults()
	cfg.Files.Policies = policiesPath
	cfg.Files.Denylist = denylistPath
	cfg.Storage.DatabasePath = filepath.Join(configDir, "podguard.db")
	cfg.Storage.AuditLogPath = filepath.Join(configDir, "audit.jsonl")
	cfg.Storage.ApprovalDir = filepath.Join(configDir, "approvals")

	configContent, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}
	policiesContent, err := policy.DefaultConfigYAML()
	if err != nil {
		return fmt.Errorf("generate default policies: %w", err)
	}
	denylistContent, err := defaultDenylistYAML()
	if err != nil {
		return fmt.Errorf("generate default denylist: %w", err)
	}

	files := []struct {
		path    string
		header  string
		content []byte
	}{
		{filepath.Join(configDir, "config.yaml"), "# podguard service configuration.\n", configContent},
		{policiesPath, "# Pod security policies. Edits are picked up without a restart.\n", policiesContent},
		{denylistPath, denylistHeader, denylistContent},
	}

	var created []string
	for _, f := range files {
		wrote, err := writeIfMissing(f.path, f.header+string(f.content))
		if err != nil {
			return err
		}
		if wrote {
			created = append(created, f.path)
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "podguard init complete.")
	fmt.Fprintln(w)
	if len(created) > 0 {
		fmt.Fprintln(w, "Created:")
		for _, path := range created {
			fmt.Fprintf(w, "  %s\n", path)
		}
	} else {
		fmt.Fprintln(w, "All files already exist (use --force to overwrite).")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Start the server:")
	fmt.Fprintf(w, "  podguard serve --config %s\n", filepath.Join(configDir, "config.yaml"))
	return nil
}

// initConfigDir returns --dir or ~/.podguard.
func initConfigDir() (string, error) {
	if initDir != "" {
		return initDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".podguard"), nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

const denylistHeader = "# podguard network denylist.\n" +
	"# Domains here are blocked for every tenant, before pod policy is consulted.\n" +
	"# \"*.example.com\" matches example.com and any subdomain.\n"

func defaultDenylistYAML() ([]byte, error) {
	return yaml.Marshal(denylist.NewDefault().ToMap())
}
