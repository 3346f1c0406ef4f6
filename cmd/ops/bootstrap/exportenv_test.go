package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/joho/godotenv"

	"surfmaster/internal/config"
)

// newMockSSMWithValues serves values keyed by full SSM path.
func newMockSSMWithValues(values map[string]string) *mockSSMClient {
	return &mockSSMClient{
		getParameterFn: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			path := aws.ToString(input.Name)
			val, ok := values[path]
			if !ok {
				return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found: " + path)}
			}
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Name: aws.String(path), Value: aws.String(val)},
			}, nil
		},
	}
}

func newTestExportConfig(t *testing.T, mock *mockSSMClient, env string, includeDefaults bool) (ExportEnvConfig, *bytes.Buffer) {
	t.Helper()
	stderr := &bytes.Buffer{}
	return ExportEnvConfig{
		OutputPath:           filepath.Join(t.TempDir(), ".env"),
		Environment:          env,
		SSM:                  NewSSMManagerWithClient(mock, env, slog.New(slog.NewTextHandler(io.Discard, nil))),
		Stderr:               stderr,
		IncludeLocalDefaults: includeDefaults,
	}, stderr
}

func allSSMValues(env string) map[string]string {
	p := "/" + env + "/surfmaster/"
	return map[string]string{
		p + "database/url":                "postgres://surf:p@ss word@db:5432/surfmaster?sslmode=disable",
		p + "forecast/stormglass_api_key": "stormglass-key-0123456789abcdef",
		p + "embedding/hf_api_key":        testHFToken,
		p + "vector/qdrant_addr":          "qdrant:6334",
		p + "queue/forecast_sync_url":     "https://sqs.eu-west-1.amazonaws.com/123456789012/forecast-sync",
		p + "embedding/provider":          "huggingface",
	}
}

func readEnvFile(t *testing.T, path string) map[string]string {
	t.Helper()
	env, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("godotenv.Read(%s): %v", path, err)
	}
	return env
}

func TestExportEnvFile_AllParameters(t *testing.T) {
	values := allSSMValues("dev")
	mock := newMockSSMWithValues(values)
	cfg, stderr := newTestExportConfig(t, mock, "dev", false)

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("ExportEnvFile: %v", err)
	}

	got := readEnvFile(t, cfg.OutputPath)
	for _, step := range BuildInventory(&Validator{}) {
		want := values["/dev/surfmaster/"+step.SSMCategoryKey]
		if got[step.EnvVar] != want {
			t.Errorf("%s = %q, want %q", step.EnvVar, got[step.EnvVar], want)
		}
	}
	if _, ok := got["APP_ENV"]; ok {
		t.Error("local defaults written without IncludeLocalDefaults")
	}
	if !strings.Contains(stderr.String(), "Wrote 6 variables") {
		t.Errorf("stderr = %q", stderr.String())
	}

	for _, call := range mock.getCalls {
		secure := strings.HasSuffix(aws.ToString(call.Name), "database/url") ||
			strings.HasSuffix(aws.ToString(call.Name), "_api_key")
		if aws.ToBool(call.WithDecryption) != secure {
			t.Errorf("%s: WithDecryption = %v, want %v", aws.ToString(call.Name), aws.ToBool(call.WithDecryption), secure)
		}
	}
}

func TestExportEnvFile_WithLocalDefaults(t *testing.T) {
	cfg, _ := newTestExportConfig(t, newMockSSMWithValues(allSSMValues("dev")), "dev", true)

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("ExportEnvFile: %v", err)
	}
	got := readEnvFile(t, cfg.OutputPath)
	for _, v := range localDevDefaults {
		if got[v.Key] != v.Value {
			t.Errorf("%s = %q, want %q", v.Key, got[v.Key], v.Value)
		}
	}
}

func TestExportEnvFile_FilePermissions(t *testing.T) {
	cfg, _ := newTestExportConfig(t, newMockSSMWithValues(allSSMValues("dev")), "dev", false)
	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("ExportEnvFile: %v", err)
	}
	info, err := os.Stat(cfg.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}

func TestExportEnvFile_MissingParametersSkipped(t *testing.T) {
	values := map[string]string{
		"/staging/surfmaster/database/url":                "postgres://db/surf",
		"/staging/surfmaster/forecast/stormglass_api_key": "stormglass-key-0123456789abcdef",
	}
	cfg, stderr := newTestExportConfig(t, newMockSSMWithValues(values), "staging", false)

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("ExportEnvFile: %v", err)
	}
	got := readEnvFile(t, cfg.OutputPath)
	if len(got) != 2 {
		t.Errorf("exported %d variables, want 2: %v", len(got), got)
	}
	if !strings.Contains(stderr.String(), "[MISSING] HF_API_KEY (/staging/surfmaster/embedding/hf_api_key)") {
		t.Errorf("missing parameter not reported:\n%s", stderr.String())
	}
}

func TestExportEnvFile_NothingFound(t *testing.T) {
	cfg, _ := newTestExportConfig(t, newMockSSMWithValues(nil), "dev", true)

	err := ExportEnvFile(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "no parameters found under /dev/surfmaster/") {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(cfg.OutputPath); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("no file should be written")
	}
}

func TestExportEnvFile_SSMFailureAborts(t *testing.T) {
	mock := &mockSSMClient{
		getParameterFn: func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, errors.New("AccessDeniedException: kms:Decrypt")
		},
	}
	cfg, _ := newTestExportConfig(t, mock, "dev", false)

	if err := ExportEnvFile(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "kms:Decrypt") {
		t.Fatalf("err = %v, want access denied", err)
	}
	if len(mock.getCalls) != 1 {
		t.Errorf("export should stop at the first failure, made %d calls", len(mock.getCalls))
	}
}

func TestExportEnvFile_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg, _ := newTestExportConfig(t, newMockSSMWithValues(allSSMValues("dev")), "dev", false)

	if err := ExportEnvFile(ctx, cfg); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFormatEnvLine_RoundTrip(t *testing.T) {
	values := map[string]string{
		"PLAIN":     "postgres://u:p@host:5432/db?sslmode=disable",
		"SPACES":    "has some spaces",
		"QUOTES":    `say "hi" twice`,
		"HASH":      "value # not a comment",
		"DOLLAR":    "pa$$word",
		"BACKSLASH": `C:\surf\data`,
		"NEWLINE":   "line1\nline2",
		"EMPTY":     "",
	}

	var b strings.Builder
	for k, v := range values {
		b.WriteString(formatEnvLine(k, v))
	}
	got, err := godotenv.Unmarshal(b.String())
	if err != nil {
		t.Fatalf("Unmarshal: %v\n%s", err, b.String())
	}
	if !reflect.DeepEqual(got, values) {
		t.Errorf("round trip mismatch\n got: %#v\nwant: %#v\nfile:\n%s", got, values, b.String())
	}
}

func TestFormatEnvLine_PlainValuesUnquoted(t *testing.T) {
	if got := formatEnvLine("QDRANT_ADDR", "qdrant:6334"); got != "QDRANT_ADDR=qdrant:6334\n" {
		t.Errorf("got %q", got)
	}
	if got := formatEnvLine("DOLLAR", "a$b"); got != "DOLLAR='a$b'\n" {
		t.Errorf("got %q", got)
	}
}

// TestInventoryMatchesConfigEnvTags guards against the bootstrap writing a
// parameter no service reads.
func TestInventoryMatchesConfigEnvTags(t *testing.T) {
	tags := map[string]bool{}
	collectEnvTags(reflect.TypeOf(config.Config{}), tags)

	for _, step := range BuildInventory(&Validator{}) {
		if !tags[step.EnvVar] {
			t.Errorf("%s is not an envconfig tag on config.Config", step.EnvVar)
		}
	}
	for _, v := range localDevDefaults {
		if !tags[v.Key] {
			t.Errorf("local default %s is not an envconfig tag on config.Config", v.Key)
		}
	}
}

func collectEnvTags(t reflect.Type, into map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if tag := f.Tag.Get("envconfig"); tag != "" {
			into[tag] = true
		}
		if f.Type.Kind() == reflect.Struct {
			collectEnvTags(f.Type, into)
		}
	}
}
