package config

import (
	"os"
	"path/filepath"
)

// AuthResult describes where AWS credentials would be loaded from
type AuthResult struct {
	Authenticated bool
	Message       string
	Region        string
	Profile       string
}

// AuthChecker inspects the local AWS credential sources without calling AWS
type AuthChecker struct {
	getenv  func(string) string
	homeDir func() (string, error)
}

// NewAuthChecker creates a checker over the process environment
func NewAuthChecker() *AuthChecker {
	return &AuthChecker{getenv: os.Getenv, homeDir: os.UserHomeDir}
}

// CheckAWS reports the first credential source found, in the order the SDK
// default chain uses them
func (a *AuthChecker) CheckAWS() AuthResult {
	result := AuthResult{
		Region:  a.getenv("AWS_REGION"),
		Profile: a.getenv("AWS_PROFILE"),
	}
	if result.Region == "" {
		result.Region = a.getenv("AWS_DEFAULT_REGION")
	}

	if a.getenv("AWS_ACCESS_KEY_ID") != "" && a.getenv("AWS_SECRET_ACCESS_KEY") != "" {
		result.Authenticated = true
		result.Message = "credentials from environment variables"
		return result
	}

	if a.getenv("AWS_WEB_IDENTITY_TOKEN_FILE") != "" {
		result.Authenticated = true
		result.Message = "credentials from web identity token"
		return result
	}

	if home, err := a.homeDir(); err == nil {
		credFile := a.getenv("AWS_SHARED_CREDENTIALS_FILE")
		if credFile == "" {
			credFile = filepath.Join(home, ".aws", "credentials")
		}
		if _, err := os.Stat(credFile); err == nil {
			if result.Profile == "" {
				result.Profile = "default"
			}
			result.Authenticated = true
			result.Message = "credentials file " + credFile
			return result
		}
	}

	if a.getenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI") != "" || a.getenv("AWS_CONTAINER_CREDENTIALS_FULL_URI") != "" {
		result.Authenticated = true
		result.Message = "credentials from container role"
		return result
	}

	result.Message = "no local AWS credentials found; relying on instance metadata"
	return result
}
