package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult holds the outcome of a validation check. It provides
// both a boolean pass/fail signal and a human-readable message suitable
// for display in the bootstrap CLI.
type ValidationResult struct {
	// Valid is true if the input passed all validation checks.
	Valid bool

	// Message is a human-readable description of the result.
	// On success, it describes what was validated.
	// On failure, it describes why validation failed.
	Message string
}

// DatabaseConnector abstracts the database connection logic for testing.
// In production, the real implementation uses pgx.Connect. Tests inject
// a mock that simulates connection success/failure.
type DatabaseConnector interface {
	// Connect attempts to establish a connection to the database at the
	// given DSN. It returns an error if the connection fails.
	// The implementation MUST close the connection before returning.
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector is the production implementation of DatabaseConnector.
// It uses pgx.Connect to make a real TCP connection to the database.
type PgxConnector struct{}

// Connect establishes a connection to the database using pgx and immediately
// closes it. The purpose is to verify that the DSN is reachable and the
// credentials are valid, not to maintain an open connection.
func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator encapsulates the dependencies needed by input validation
// functions. It is constructed during bootstrap initialization and threaded
// through the validation phases.
type Validator struct {
	dbConn DatabaseConnector
}

// NewValidator creates a Validator with a real pgx connector.
func NewValidator() *Validator {
	return &Validator{dbConn: &PgxConnector{}}
}

// NewValidatorWithDeps creates a Validator with an injected connector
// for testing.
func NewValidatorWithDeps(dbConn DatabaseConnector) *Validator {
	return &Validator{dbConn: dbConn}
}

// validateTimeout is the per-probe timeout for active validation calls.
const validateTimeout = 15 * time.Second

// ValidateDatabaseURL validates a Supabase PostgreSQL connection string.
//
// Validation steps:
//  1. Parse the URL to extract the host and port.
//  2. Verify the port is 6543 (Supabase Transaction Mode via PgBouncer).
//  3. Attempt an actual connection using pgx to verify the credentials
//     and network reachability.
//
// The connection is immediately closed after verification.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "database URL must not be empty"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid URL format: %v", err),
		}
	}

	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme),
		}
	}

	_, port, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		// If no port is specified, that's also wrong: 6543 is required.
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("could not extract port from host %q: %v (port 6543 is required for Supabase Transaction Mode)", parsed.Host, err),
		}
	}

	if port != "6543" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("port must be 6543 (Supabase Transaction Mode), got %q", port),
		}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("connection failed: %v", err),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s, port=%s)", parsed.Hostname(), port),
	}
}

// ValidateRegex is a generic validator that checks whether the input matches
// the given regular expression pattern. It is used for inputs that cannot be
// actively probed.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s must not be empty", fieldName),
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid regex pattern %q: %v", pattern, err),
		}
	}

	if !re.MatchString(input) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s does not match expected format (pattern: %s)", fieldName, pattern),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("%s format validated", fieldName),
	}
}
