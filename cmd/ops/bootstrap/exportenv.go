package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ssmToEnvMapping maps each SSM category/key from the bootstrap inventory to
// the environment variable the service reads. The variable names must match
// the envconfig tags in internal/config.
var ssmToEnvMapping = map[string]string{
	"database/url":                      "DATABASE_URL",
	"gateway/abacatepay_webhook_secret": "ABACATEPAY_WEBHOOK_SECRET",
	"queue/recon_alerts_url":            "SQS_RECON_ALERTS",
}

// localDefaults are non-secret values appended to the exported .env file so
// the service starts locally without further editing.
var localDefaults = []struct {
	key   string
	value string
}{
	{"APP_ENV", "local"},
	{"PORT", "8080"},
	{"AWS_REGION", "us-east-1"},
	{"LOG_LEVEL", "debug"},
}

// ExportEnvConfig holds the inputs for ExportEnvFile.
type ExportEnvConfig struct {
	// OutputPath is where the .env file is written.
	OutputPath string

	// Environment is the SSM environment prefix the values are read from.
	Environment string

	// SSM reads the parameters back, decrypting SecureStrings.
	SSM *SSMManager

	// Stderr receives progress output.
	Stderr io.Writer

	// IncludeLocalDefaults appends non-secret local development defaults
	// (APP_ENV=local, PORT, ...) to the exported file.
	IncludeLocalDefaults bool
}

// ExportEnvFile reads every bootstrap parameter back from SSM and writes a
// .env file for local development. Parameters that do not exist in SSM
// (skipped during bootstrap) are reported and omitted rather than failing
// the export.
//
// The file is written with 0600 permissions since it contains decrypted
// secrets.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	if cfg.SSM == nil {
		return fmt.Errorf("export-env: SSM manager must not be nil")
	}
	if cfg.OutputPath == "" {
		return fmt.Errorf("export-env: output path must not be empty")
	}

	// Deterministic order for a readable, diffable file.
	keys := make([]string, 0, len(ssmToEnvMapping))
	for ssmKey := range ssmToEnvMapping {
		keys = append(keys, ssmKey)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Generated by the CreditGate bootstrap tool. Do not commit this file.\n")
	fmt.Fprintf(&b, "# Source: SSM /%s/creditgate/\n\n", cfg.Environment)

	var missing []string
	for _, ssmKey := range keys {
		envVar := ssmToEnvMapping[ssmKey]
		path := cfg.SSM.SSMPath(ssmKey)

		value, err := cfg.SSM.GetParameterValue(ctx, path, true)
		if err != nil {
			missing = append(missing, envVar)
			fmt.Fprintf(cfg.Stderr, "  Skipping %s: %v\n", envVar, err)
			continue
		}

		b.WriteString(formatEnvLine(envVar, value))
		b.WriteByte('\n')
	}

	if cfg.IncludeLocalDefaults {
		b.WriteString("\n# Local development defaults.\n")
		for _, def := range localDefaults {
			b.WriteString(formatEnvLine(def.key, def.value))
			b.WriteByte('\n')
		}
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.OutputPath, err)
	}

	fmt.Fprintf(cfg.Stderr, "  Wrote %s (%d parameters, %d missing)\n",
		cfg.OutputPath, len(keys)-len(missing), len(missing))
	return nil
}

// plainEnvValue matches values safe to write unquoted in a dotenv file.
var plainEnvChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_.:/@+=-"

// formatEnvLine renders a single KEY=value dotenv line. Values containing
// characters outside the safe set are double-quoted with backslash, quote,
// and newline escaping.
func formatEnvLine(key, value string) string {
	if value != "" && !strings.ContainsFunc(value, func(r rune) bool {
		return !strings.ContainsRune(plainEnvChars, r)
	}) {
		return fmt.Sprintf("%s=%s", key, value)
	}

	escaped := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
	).Replace(value)
	return fmt.Sprintf("%s=\"%s\"", key, escaped)
}
