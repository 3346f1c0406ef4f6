package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult is the outcome of one input check.
type ValidationResult struct {
	Valid   bool
	Message string
}

// HTTPClient is the subset of *http.Client used by the active probes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and immediately closes a connection to dsn.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector connects with pgx.
type PgxConnector struct{}

func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator holds the network dependencies of the input checks.
type Validator struct {
	httpClient HTTPClient
	dbConn     DatabaseConnector

	huggingFaceURL string
}

// NewValidator creates a Validator with a 10s HTTP client and a real pgx
// connector.
func NewValidator() *Validator {
	return &Validator{
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		dbConn:         &PgxConnector{},
		huggingFaceURL: defaultHuggingFaceWhoAmIURL,
	}
}

// NewValidatorWithDeps creates a Validator with injected dependencies.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector) *Validator {
	return &Validator{
		httpClient:     httpClient,
		dbConn:         dbConn,
		huggingFaceURL: defaultHuggingFaceWhoAmIURL,
	}
}

// validateTimeout bounds each active probe, DNS and TLS included.
const validateTimeout = 15 * time.Second

const defaultHuggingFaceWhoAmIURL = "https://huggingface.co/api/whoami-v2"

// sqsQueueURLPattern matches https://sqs.{region}.amazonaws.com/{account}/{name}
// and the LocalStack form.
const sqsQueueURLPattern = `^(https://sqs\.[a-z0-9-]+\.amazonaws\.com|http://(localhost|localstack):4566)/\d{12}/[A-Za-z0-9_-]+(\.fifo)?$`

// ValidateDatabaseURL checks the scheme and then connects with the DSN.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "database URL must not be empty"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid URL format: %v", err)}
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme),
		}
	}
	if parsed.Hostname() == "" {
		return ValidationResult{Valid: false, Message: "database URL has no host"}
	}
	port := parsed.Port()
	if port == "" {
		port = "5432"
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("connection failed: %v", err)}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s, port=%s)", parsed.Hostname(), port),
	}
}

var huggingFaceKeyRegex = regexp.MustCompile(`^hf_[0-9A-Za-z]{30,}$`)

// ValidateHuggingFaceKey checks the hf_ token format and calls the whoami
// endpoint, which has no side effects.
func (v *Validator) ValidateHuggingFaceKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Hugging Face API key must not be empty"}
	}
	if !huggingFaceKeyRegex.MatchString(key) {
		return ValidationResult{Valid: false, Message: "Hugging Face API key must match format hf_[alphanumeric 30+ chars]"}
	}

	body, status, err := v.probe(ctx, v.huggingFaceURL, "Bearer "+key)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("Hugging Face API probe failed: %v", err)}
	}
	if status == http.StatusUnauthorized {
		return ValidationResult{Valid: false, Message: "Hugging Face API returned 401 Unauthorized: token is invalid or revoked"}
	}
	if status != http.StatusOK {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Hugging Face API returned HTTP %d: %s", status, truncateBody(body, 200)),
		}
	}

	var who struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &who); err == nil && who.Name != "" {
		return ValidationResult{Valid: true, Message: fmt.Sprintf("Hugging Face token verified (user: %s)", who.Name)}
	}
	return ValidationResult{Valid: true, Message: "Hugging Face token verified"}
}

// ValidateStormglassKey checks the key length only. Every Stormglass
// endpoint that accepts a key is counted against the daily request quota.
func (v *Validator) ValidateStormglassKey(_ context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Stormglass API key must not be empty"}
	}
	if len(key) <= 20 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Stormglass API key must be longer than 20 characters (got %d)", len(key)),
		}
	}
	if strings.ContainsAny(key, " \t") {
		return ValidationResult{Valid: false, Message: "Stormglass API key must not contain whitespace"}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("Stormglass API key accepted (length: %d chars)", len(key))}
}

// ValidateHostPort checks a host:port pair such as a Qdrant gRPC address.
func (v *Validator) ValidateHostPort(_ context.Context, addr string) ValidationResult {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ValidationResult{Valid: false, Message: "address must not be empty"}
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("expected host:port, got %q: %v", addr, err)}
	}
	if host == "" {
		return ValidationResult{Valid: false, Message: "address has no host"}
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid port %q", port)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("address format validated (%s)", addr)}
}

// ValidateRegex checks input against pattern.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("%s must not be empty", fieldName)}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)}
	}
	if !re.MatchString(input) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s does not match expected format (pattern: %s)", fieldName, pattern),
		}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("%s format validated", fieldName)}
}

// probe issues an authenticated GET and returns at most 4 KiB of the body.
func (v *Validator) probe(ctx context.Context, target, authorization string) ([]byte, int, error) {
	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("User-Agent", "SurfMaster-Bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return body, resp.StatusCode, nil
}

// truncateBody returns the first n bytes of body, with "..." when cut.
func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
