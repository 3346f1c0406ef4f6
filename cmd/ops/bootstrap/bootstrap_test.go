package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockGetParameterExisting reports the paths in existing as present and
// every other path as ParameterNotFound.
func mockGetParameterExisting(existing map[string]bool) func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
	return func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
		path := aws.ToString(input.Name)
		if existing[path] {
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Name: aws.String(path), Value: aws.String("***")},
			}, nil
		}
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
	}
}

func alwaysValid(context.Context, string) ValidationResult {
	return ValidationResult{Valid: true, Message: "test-accepted"}
}

// newTestRunner builds a runner over the real inventory with validators
// replaced by alwaysValid.
func newTestRunner(mock *mockSSMClient, stdin string) (*BootstrapRunner, *bytes.Buffer) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stderr := &bytes.Buffer{}
	validator := NewValidatorWithDeps(nil, nil)

	inventory := BuildInventory(validator)
	for i := range inventory {
		if inventory[i].ValidateFn != nil {
			inventory[i].ValidateFn = alwaysValid
		}
	}

	return &BootstrapRunner{
		SSM:               NewSSMManagerWithClient(mock, "dev", logger),
		Validator:         validator,
		Stdin:             strings.NewReader(stdin),
		Stderr:            stderr,
		inventoryOverride: inventory,
	}, stderr
}

func putPaths(mock *mockSSMClient) map[string]*ssm.PutParameterInput {
	out := make(map[string]*ssm.PutParameterInput, len(mock.putCalls))
	for _, c := range mock.putCalls {
		out[aws.ToString(c.Name)] = c
	}
	return out
}

func TestBuildInventory(t *testing.T) {
	inventory := BuildInventory(NewValidatorWithDeps(nil, nil))

	want := map[string]string{
		"database/url":                "DATABASE_URL",
		"forecast/stormglass_api_key": "STORMGLASS_API_KEY",
		"embedding/hf_api_key":        "HF_API_KEY",
		"vector/qdrant_addr":          "QDRANT_ADDR",
		"queue/forecast_sync_url":     "SQS_FORECAST_SYNC",
		"embedding/provider":          "EMBEDDING_PROVIDER",
	}
	if len(inventory) != len(want) {
		t.Fatalf("inventory has %d steps, want %d", len(inventory), len(want))
	}

	seenEnv := map[string]bool{}
	for _, step := range inventory {
		env, ok := want[step.SSMCategoryKey]
		if !ok {
			t.Errorf("unexpected step %q", step.SSMCategoryKey)
			continue
		}
		if step.EnvVar != env {
			t.Errorf("%s: EnvVar = %q, want %q", step.SSMCategoryKey, step.EnvVar, env)
		}
		if seenEnv[step.EnvVar] {
			t.Errorf("duplicate EnvVar %q", step.EnvVar)
		}
		seenEnv[step.EnvVar] = true

		if step.IsSecret && step.ParamType != ParamSecureString {
			t.Errorf("%s: secret input must be stored as SecureString", step.HumanLabel)
		}
		if step.Source == SourcePrompt && (step.Prompt == "" || step.ValidateFn == nil) {
			t.Errorf("%s: prompted step needs a prompt and a validator", step.HumanLabel)
		}
		if step.Source == SourceFixed && step.FixedValue == "" {
			t.Errorf("%s: fixed step has no value", step.HumanLabel)
		}
	}
}

func TestRun_WritesAllParameters(t *testing.T) {
	mock := &mockSSMClient{getParameterFn: mockGetParameterExisting(nil)}
	stdin := strings.Join([]string{
		"postgres://surf:pw@db:5432/surfmaster",
		"stormglass-key-0123456789abcdef",
		testHFToken,
		"qdrant:6334",
		"https://sqs.eu-west-1.amazonaws.com/123456789012/forecast-sync",
	}, "\n") + "\n"
	runner, stderr := newTestRunner(mock, stdin)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	puts := putPaths(mock)
	if len(puts) != 6 {
		t.Fatalf("wrote %d parameters, want 6", len(puts))
	}
	db := puts["/dev/surfmaster/database/url"]
	if db == nil || db.Type != ssmtypes.ParameterTypeSecureString || aws.ToString(db.Value) != "postgres://surf:pw@db:5432/surfmaster" {
		t.Errorf("database/url written as %+v", db)
	}
	if p := puts["/dev/surfmaster/embedding/provider"]; p == nil || aws.ToString(p.Value) != "huggingface" {
		t.Errorf("fixed provider not written: %+v", p)
	}
	if q := puts["/dev/surfmaster/vector/qdrant_addr"]; q == nil || q.Type != ssmtypes.ParameterTypeString {
		t.Errorf("qdrant addr should be a String parameter: %+v", q)
	}

	out := stderr.String()
	if strings.Contains(out, "surf:pw") || strings.Contains(out, testHFToken) {
		t.Error("secret input echoed to stderr")
	}
	if !strings.Contains(out, "Written: 6 | Overwritten: 0 | Skipped: 0") {
		t.Errorf("summary missing counts:\n%s", out)
	}
	if !strings.Contains(out, "DATABASE_URL_SSM_PARAM=/dev/surfmaster/database/url") {
		t.Error("summary should show the SSM pointer variable")
	}
}

func TestRun_SkipOptional(t *testing.T) {
	mock := &mockSSMClient{getParameterFn: mockGetParameterExisting(nil)}
	runner, stderr := newTestRunner(mock, "postgres://db/surf\nstormglass-key-0123456789abcdef\n")
	runner.SkipOptional = true

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	puts := putPaths(mock)
	for _, skipped := range []string{"embedding/hf_api_key", "vector/qdrant_addr", "queue/forecast_sync_url"} {
		if _, ok := puts["/dev/surfmaster/"+skipped]; ok {
			t.Errorf("optional %s should not be written", skipped)
		}
	}
	if len(puts) != 3 {
		t.Errorf("wrote %d parameters, want 3", len(puts))
	}
	if !strings.Contains(stderr.String(), "Skipped (--skip-optional)") {
		t.Error("expected skip notice")
	}
}

func TestRun_OptionalEmptyInputSkips(t *testing.T) {
	mock := &mockSSMClient{getParameterFn: mockGetParameterExisting(nil)}
	runner, _ := newTestRunner(mock, "postgres://db/surf\nstormglass-key-0123456789abcdef\n\n\n\n")

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(mock.putCalls); got != 3 {
		t.Errorf("wrote %d parameters, want 3", got)
	}
}

func TestRun_ExistingParameter(t *testing.T) {
	existing := map[string]bool{"/dev/surfmaster/database/url": true}

	t.Run("skip", func(t *testing.T) {
		mock := &mockSSMClient{getParameterFn: mockGetParameterExisting(existing)}
		runner, _ := newTestRunner(mock, "s\nstormglass-key-0123456789abcdef\n\n\n\n")
		if err := runner.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if _, ok := putPaths(mock)["/dev/surfmaster/database/url"]; ok {
			t.Error("skipped parameter was written")
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		mock := &mockSSMClient{getParameterFn: mockGetParameterExisting(existing)}
		runner, stderr := newTestRunner(mock, "maybe\no\npostgres://new/surf\nstormglass-key-0123456789abcdef\n\n\n\n")
		if err := runner.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		db := putPaths(mock)["/dev/surfmaster/database/url"]
		if db == nil || !aws.ToBool(db.Overwrite) {
			t.Fatalf("expected overwrite of database/url, got %+v", db)
		}
		if !strings.Contains(stderr.String(), "Please enter 'S' or 'O'") {
			t.Error("invalid choice should re-prompt")
		}
		if !strings.Contains(stderr.String(), "Overwritten: 1") {
			t.Error("summary should count the overwrite")
		}
	})
}

func TestPromptAndValidate_RequiredEmptyInput(t *testing.T) {
	step := BootstrapStep{HumanLabel: "Database URL", Prompt: "paste", ValidateFn: alwaysValid}

	t.Run("retry then value", func(t *testing.T) {
		runner, _ := newTestRunner(&mockSSMClient{}, "\nr\npostgres://db/surf\n")
		got, err := runner.promptAndValidate(context.Background(), step)
		if err != nil || got != "postgres://db/surf" {
			t.Fatalf("got (%q, %v)", got, err)
		}
	})

	t.Run("skip", func(t *testing.T) {
		runner, _ := newTestRunner(&mockSSMClient{}, "\ns\n")
		if _, err := runner.promptAndValidate(context.Background(), step); err != errSkipped {
			t.Fatalf("err = %v, want errSkipped", err)
		}
	})
}

func TestPromptAndValidate_MaxRetries(t *testing.T) {
	step := BootstrapStep{
		HumanLabel: "Stormglass API Key",
		ValidateFn: func(context.Context, string) ValidationResult {
			return ValidationResult{Valid: false, Message: "nope"}
		},
	}
	runner, stderr := newTestRunner(&mockSSMClient{}, strings.Repeat("bad\n", maxRetries))

	_, err := runner.promptAndValidate(context.Background(), step)
	if err == nil || !strings.Contains(err.Error(), "maximum retries") {
		t.Fatalf("err = %v, want maximum retries", err)
	}
	if n := strings.Count(stderr.String(), "Validation failed: nope"); n != maxRetries {
		t.Errorf("validation failures printed %d times, want %d", n, maxRetries)
	}
}

func TestPromptAndValidate_EOF(t *testing.T) {
	runner, _ := newTestRunner(&mockSSMClient{}, "")
	_, err := runner.promptAndValidate(context.Background(), BootstrapStep{HumanLabel: "x"})
	if err == nil || !strings.Contains(err.Error(), "EOF") {
		t.Fatalf("err = %v, want EOF", err)
	}
}
