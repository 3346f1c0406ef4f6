package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParameterType indicates whether an SSM parameter is stored encrypted.
type ParameterType int

const (
	ParamSecureString ParameterType = iota
	ParamString
)

// InputSource describes how the value for a bootstrap step is obtained.
type InputSource int

const (
	// SourcePrompt means the operator types the value.
	SourcePrompt InputSource = iota
	// SourceFixed means the value is a constant written as-is.
	SourceFixed
)

// BootstrapStep is one SSM parameter the deployment reads through an
// X_SSM_PARAM pointer.
type BootstrapStep struct {
	// HumanLabel is the display name shown to the operator.
	HumanLabel string

	// SSMCategoryKey becomes /{env}/surfmaster/{category}/{key}.
	SSMCategoryKey string

	// EnvVar is the configuration variable the parameter feeds. The
	// deployment sets EnvVar+"_SSM_PARAM" to the parameter path, and
	// --export-env writes EnvVar=value.
	EnvVar string

	ParamType  ParameterType
	Source     InputSource
	FixedValue string
	Prompt     string

	// ValidateFn checks operator input. Nil accepts anything.
	ValidateFn func(ctx context.Context, input string) ValidationResult

	// IsSecret masks the input on a terminal.
	IsSecret bool

	// Optional steps are skipped on empty input, or always with --skip-optional.
	Optional bool

	Phase string
}

const maxRetries = 5

var errSkipped = errors.New("parameter skipped by operator")

// BuildInventory returns the ordered bootstrap steps.
func BuildInventory(v *Validator) []BootstrapStep {
	return []BootstrapStep{
		{
			HumanLabel:     "Database URL",
			SSMCategoryKey: "database/url",
			EnvVar:         "DATABASE_URL",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `1. Provision a PostgreSQL database (RDS, Supabase or similar).
   2. Create a role for SurfMaster with DDL rights on its schema.
   3. Paste the full postgres://... connection string here:`,
			ValidateFn: v.ValidateDatabaseURL,
			IsSecret:   true,
			Phase:      "External Accounts",
		},
		{
			HumanLabel:     "Stormglass API Key",
			SSMCategoryKey: "forecast/stormglass_api_key",
			EnvVar:         "STORMGLASS_API_KEY",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `1. Sign in at https://stormglass.io and open the dashboard.
   2. Copy the API key shown under "API Key".
   3. Paste it here:`,
			ValidateFn: v.ValidateStormglassKey,
			IsSecret:   true,
			Phase:      "External Accounts",
		},
		{
			HumanLabel:     "Hugging Face API Key (optional)",
			SSMCategoryKey: "embedding/hf_api_key",
			EnvVar:         "HF_API_KEY",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `Required unless the deployment embeds through Ollama.
   1. Go to https://huggingface.co/settings/tokens.
   2. Create a read token (hf_...) and paste it here, or press Enter to skip:`,
			ValidateFn: v.ValidateHuggingFaceKey,
			IsSecret:   true,
			Optional:   true,
			Phase:      "External Accounts",
		},
		{
			HumanLabel:     "Qdrant Address (optional)",
			SSMCategoryKey: "vector/qdrant_addr",
			EnvVar:         "QDRANT_ADDR",
			ParamType:      ParamString,
			Source:         SourcePrompt,
			Prompt:         `Paste the Qdrant gRPC address as host:port (or press Enter to keep embeddings in memory only):`,
			ValidateFn:     v.ValidateHostPort,
			Optional:       true,
			Phase:          "Infrastructure",
		},
		{
			HumanLabel:     "Forecast Sync Queue URL (optional)",
			SSMCategoryKey: "queue/forecast_sync_url",
			EnvVar:         "SQS_FORECAST_SYNC",
			ParamType:      ParamString,
			Source:         SourcePrompt,
			Prompt:         `Paste the SQS queue URL for forecast sync requests (or press Enter to skip):`,
			ValidateFn: func(ctx context.Context, input string) ValidationResult {
				return v.ValidateRegex(ctx, input, sqsQueueURLPattern, "SQS queue URL")
			},
			Optional: true,
			Phase:    "Infrastructure",
		},
		{
			HumanLabel:     "Embedding Provider",
			SSMCategoryKey: "embedding/provider",
			EnvVar:         "EMBEDDING_PROVIDER",
			ParamType:      ParamString,
			Source:         SourceFixed,
			FixedValue:     "huggingface",
			Phase:          "Defaults",
		},
	}
}

// BootstrapRunner walks the inventory against one SSM environment.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// SkipOptional skips every Optional step without prompting.
	SkipOptional bool

	// A single scanner for the whole session; several would read ahead of
	// each other.
	scanner *bufio.Scanner

	inventoryOverride []BootstrapStep
}

// NewBootstrapRunner creates a BootstrapRunner with production dependencies.
func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

func (r *BootstrapRunner) inventory() []BootstrapStep {
	if r.inventoryOverride != nil {
		return r.inventoryOverride
	}
	return BuildInventory(r.Validator)
}

// Run processes every step in order and prints a summary.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inventory := r.inventory()

	var currentPhase string
	results := make([]stepResult, 0, len(inventory))
	for i, step := range inventory {
		if step.Phase != currentPhase {
			currentPhase = step.Phase
			r.printPhaseHeader(currentPhase)
		}
		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

type stepResult struct {
	Label  string
	Action string // written, skipped, overwritten
	Path   string
}

func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)
	result := stepResult{Label: step.HumanLabel, Path: path}

	if step.Optional && r.SkipOptional {
		fmt.Fprintf(r.Stderr, "  Skipped (--skip-optional)\n")
		result.Action = "skipped"
		return result, nil
	}

	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}
	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)
		choice, err := r.promptChoice("  [S]kip or [O]verwrite? ", "skip", "overwrite")
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if choice == "skip" {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = "skipped"
			return result, nil
		}
	}

	var value string
	switch step.Source {
	case SourcePrompt:
		value, err = r.promptAndValidate(ctx, step)
		if errors.Is(err, errSkipped) {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = "skipped"
			return result, nil
		}
		if err != nil {
			return result, err
		}
	case SourceFixed:
		value = step.FixedValue
		fmt.Fprintf(r.Stderr, "  Using fixed value: %s\n", value)
	}

	if step.ParamType == ParamSecureString {
		err = r.SSM.PutSecret(ctx, path, value, exists)
	} else {
		err = r.SSM.PutString(ctx, path, value)
	}
	if err != nil {
		return result, fmt.Errorf("writing SSM parameter %s: %w", path, err)
	}

	result.Action = "written"
	if exists {
		result.Action = "overwritten"
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// promptAndValidate reads a value and retries up to maxRetries times on
// validation failure. Empty input on a required step asks to skip or retry
// without consuming an attempt.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var (
			input string
			err   error
		)
		if step.IsSecret {
			input, err = r.readSecretInput("  > ")
		} else {
			input, err = r.readInput("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			choice, err := r.promptChoice("  No input received. [S]kip this parameter or [R]etry? ", "skip", "retry")
			if err != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, err)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			attempt--
			continue
		}

		// Never echo secrets, only their length.
		if step.IsSecret {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.ValidateFn != nil {
			vr := step.ValidateFn(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				if attempt < maxRetries {
					fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
				}
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}
		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

func (r *BootstrapRunner) scanLine() (string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *BootstrapRunner) readInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecretInput disables echo when stdin is a terminal and falls back to
// plain line reading otherwise.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(secret), nil
	}
	return r.scanLine()
}

// promptChoice loops until the operator picks one of two options by its
// full name or first letter.
func (r *BootstrapRunner) promptChoice(prompt, first, second string) (string, error) {
	for {
		fmt.Fprint(r.Stderr, prompt)
		line, err := r.scanLine()
		if err != nil {
			return "", err
		}
		switch choice := strings.TrimSpace(strings.ToLower(line)); choice {
		case first, first[:1]:
			return first, nil
		case second, second[:1]:
			return second, nil
		default:
			fmt.Fprintf(r.Stderr, "  Please enter '%s' or '%s'.\n", strings.ToUpper(first[:1]), strings.ToUpper(second[:1]))
		}
	}
}

func (r *BootstrapRunner) printPhaseHeader(phase string) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Phase: %s\n", phase)
	fmt.Fprintf(r.Stderr, "============================================================\n")
}

func (r *BootstrapRunner) printSummary(results []stepResult) {
	counts := map[string]int{}

	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-14s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Label)
	}
	fmt.Fprintf(r.Stderr, "------------------------------------------------------------\n")
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Skipped: %d\n",
		counts["written"], counts["overwritten"], counts["skipped"])
	fmt.Fprintf(r.Stderr, "============================================================\n\n")
	fmt.Fprintf(r.Stderr, "  Point each service at these parameters with X_SSM_PARAM\n")
	fmt.Fprintf(r.Stderr, "  variables, e.g. DATABASE_URL_SSM_PARAM=%s\n\n", r.SSM.SSMPath("database/url"))
}
