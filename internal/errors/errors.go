package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeAuthentication ErrorType = "Authentication"
	ErrorTypeConfiguration  ErrorType = "Configuration"
	ErrorTypeService        ErrorType = "Service"
	ErrorTypeNetwork        ErrorType = "Network"
	ErrorTypePermission     ErrorType = "Permission"
	ErrorTypeValidation     ErrorType = "Validation"
	ErrorTypeNotFound       ErrorType = "NotFound"
)

// Service is the AWS service an error originated from
type Service string

const (
	ServiceAWS        Service = "AWS"
	ServiceEC2        Service = "EC2"
	ServiceRDS        Service = "RDS"
	ServiceSNS        Service = "SNS"
	ServiceDynamoDB   Service = "DynamoDB"
	ServiceCloudWatch Service = "CloudWatch"
	ServiceHealer     Service = "ilmarinen"
)

// HealError is a user-facing error with actionable guidance
type HealError struct {
	Type        ErrorType
	Service     Service
	Message     string
	Cause       string
	Solutions   []string
	Verify      string
	Help        string
	Environment string
	err         error
}

// Error implements the error interface
func (e *HealError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\nError: %s\n", e.Message))

	if e.Cause != "" {
		sb.WriteString(fmt.Sprintf("Cause: %s\n", e.Cause))
	}

	if e.Environment != "" {
		sb.WriteString(fmt.Sprintf("Environment: %s\n", e.Environment))
	}

	if len(e.Solutions) > 0 {
		sb.WriteString("\nSolutions:\n")
		for _, solution := range e.Solutions {
			sb.WriteString(fmt.Sprintf("  %s\n", solution))
		}
	}

	if e.Verify != "" {
		sb.WriteString(fmt.Sprintf("\nVerify: %s\n", e.Verify))
	}

	if e.Help != "" {
		sb.WriteString(fmt.Sprintf("Help: %s\n", e.Help))
	}

	return sb.String()
}

// Unwrap exposes the wrapped error to errors.Is and errors.As
func (e *HealError) Unwrap() error {
	return e.err
}

// Format implements fmt.Formatter for custom formatting
func (e *HealError) Format(f fmt.State, verb rune) {
	switch verb {
	case 's':
		fmt.Fprintf(f, "%s", e.Error())
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "[%s/%s] %s", e.Type, e.Service, e.Error())
		} else {
			fmt.Fprintf(f, "%s", e.Error())
		}
	}
}

// New creates a new HealError
func New(errType ErrorType, service Service, message string) *HealError {
	return &HealError{
		Type:        errType,
		Service:     service,
		Message:     message,
		Environment: detectEnvironment(),
	}
}

// Wrap creates a HealError that wraps err and uses it as the cause
func Wrap(err error, errType ErrorType, service Service, message string) *HealError {
	e := New(errType, service, message)
	e.err = err
	if err != nil {
		e.Cause = err.Error()
	}
	return e
}

// WithCause adds cause information
func (e *HealError) WithCause(cause string) *HealError {
	e.Cause = cause
	return e
}

// WithSolutions adds solution steps
func (e *HealError) WithSolutions(solutions ...string) *HealError {
	e.Solutions = append(e.Solutions, solutions...)
	return e
}

// WithVerify adds verification command
func (e *HealError) WithVerify(verify string) *HealError {
	e.Verify = verify
	return e
}

// WithHelp adds help command
func (e *HealError) WithHelp(help string) *HealError {
	e.Help = help
	return e
}

// detectEnvironment detects where the healer is running
func detectEnvironment() string {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return "AWS Lambda detected"
	}

	ciVars := []string{"CI", "CONTINUOUS_INTEGRATION", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_HOME"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return "CI/CD detected"
		}
	}

	if os.Getenv("ECS_CONTAINER_METADATA_URI_V4") != "" {
		return "ECS task detected"
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "Container environment detected"
	}

	return "Development workstation detected"
}

// IsUserError checks if error requires user action
func IsUserError(err error) bool {
	var healErr *HealError
	return stderrors.As(err, &healErr)
}

// GetExitCode returns appropriate exit code for error type
func GetExitCode(err error) int {
	var healErr *HealError
	if !stderrors.As(err, &healErr) {
		return 1
	}

	switch healErr.Type {
	case ErrorTypeAuthentication:
		return 77 // EX_NOPERM
	case ErrorTypeConfiguration, ErrorTypeValidation:
		return 78 // EX_CONFIG
	case ErrorTypePermission:
		return 77 // EX_NOPERM
	case ErrorTypeNotFound:
		return 66 // EX_NOINPUT
	case ErrorTypeNetwork, ErrorTypeService:
		return 69 // EX_UNAVAILABLE
	default:
		return 1
	}
}
