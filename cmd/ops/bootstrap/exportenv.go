package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ExportEnvConfig controls ExportEnvFile.
type ExportEnvConfig struct {
	OutputPath  string
	Environment string
	SSM         *SSMManager
	Stderr      io.Writer

	// IncludeLocalDefaults appends the settings a laptop run needs that
	// never live in SSM.
	IncludeLocalDefaults bool
}

// envVar is one KEY=value line.
type envVar struct {
	Key   string
	Value string
}

// localDevDefaults are appended with IncludeLocalDefaults.
var localDevDefaults = []envVar{
	{"APP_ENV", "local"},
	{"LOG_LEVEL", "debug"},
	{"METRICS_BACKEND", "prometheus"},
	{"DB_AUTO_MIGRATE", "true"},
	{"ENABLE_TRACING", "false"},
}

// ExportEnvFile reads every inventory parameter back from SSM and writes a
// godotenv-compatible file with mode 0600. Missing parameters are reported
// and skipped; any other SSM failure aborts without writing.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	var (
		vars    []envVar
		missing []string
	)
	for _, step := range BuildInventory(&Validator{}) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("export cancelled: %w", err)
		}
		path := cfg.SSM.SSMPath(step.SSMCategoryKey)
		value, err := cfg.SSM.GetParameterValue(ctx, path, step.ParamType == ParamSecureString)
		if err != nil {
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) {
				missing = append(missing, path)
				fmt.Fprintf(stderr, "  [MISSING] %s (%s)\n", step.EnvVar, path)
				continue
			}
			return err
		}
		vars = append(vars, envVar{Key: step.EnvVar, Value: value})
		fmt.Fprintf(stderr, "  [EXPORTED] %s\n", step.EnvVar)
	}
	if len(vars) == 0 {
		return fmt.Errorf("no parameters found under %s (%d missing)", ssmPrefix(cfg.Environment), len(missing))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# SurfMaster local environment exported from SSM (%s)\n", ssmPrefix(cfg.Environment))
	fmt.Fprintf(&b, "# Generated %s. Contains secrets: do not commit.\n\n", time.Now().UTC().Format(time.RFC3339))
	for _, v := range vars {
		b.WriteString(formatEnvLine(v.Key, v.Value))
	}
	if cfg.IncludeLocalDefaults {
		b.WriteString("\n# Local development defaults\n")
		for _, v := range localDevDefaults {
			b.WriteString(formatEnvLine(v.Key, v.Value))
		}
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.OutputPath, err)
	}
	fmt.Fprintf(stderr, "  Wrote %d variables to %s\n", len(vars), cfg.OutputPath)
	return nil
}

var plainEnvValue = regexp.MustCompile(`^[A-Za-z0-9_./:@?=&%+,-]*$`)

// formatEnvLine renders KEY=value, quoting so that godotenv reads the value
// back unchanged. Values with $ are single-quoted to prevent expansion.
func formatEnvLine(key, value string) string {
	switch {
	case value != "" && plainEnvValue.MatchString(value):
		return key + "=" + value + "\n"
	case strings.Contains(value, "$") && !strings.ContainsAny(value, "'\n"):
		return key + "='" + value + "'\n"
	default:
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
		return key + `="` + r.Replace(value) + `"` + "\n"
	}
}
