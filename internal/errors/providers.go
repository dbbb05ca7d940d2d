package errors

import (
	"fmt"
	"os"
	"strings"
)

// AWSCredentialsError creates an AWS credentials error with guidance
func AWSCredentialsError(originalErr error) *HealError {
	err := New(ErrorTypeAuthentication, ServiceAWS, "AWS credentials not found")
	err.err = originalErr
	err.WithCause("No valid credential source detected")

	if originalErr != nil && strings.Contains(originalErr.Error(), "ExpiredToken") {
		err.Message = "AWS credentials expired"
		err.WithCause("Security token has expired")
		err.WithSolutions(
			"Refresh AWS credentials",
			"aws sso login (if using SSO)",
			"Get new temporary credentials",
		)
	} else if err.Environment == "AWS Lambda detected" || err.Environment == "ECS task detected" {
		err.WithSolutions(
			"Attach an execution role to the function or task",
			"Check the role trust policy allows the service to assume it",
		)
	} else if err.Environment == "CI/CD detected" {
		err.WithSolutions(
			`Configure AWS IAM role for CI/CD`,
			`export AWS_ACCESS_KEY_ID=your-key AWS_SECRET_ACCESS_KEY=your-secret`,
		)
	} else {
		err.WithSolutions(
			`aws configure`,
			`export AWS_ACCESS_KEY_ID=your-key AWS_SECRET_ACCESS_KEY=your-secret`,
			`export AWS_PROFILE=your-profile`,
			`aws sso login (if using AWS SSO)`,
		)
	}

	err.WithVerify("aws sts get-caller-identity")
	err.WithHelp("ilmarinen --help")

	return err
}

// AWSRegionError creates an AWS region configuration error
func AWSRegionError() *HealError {
	err := New(ErrorTypeConfiguration, ServiceAWS, "AWS region not specified")

	err.WithSolutions(
		`export AWS_REGION=us-east-1`,
		`aws configure set region us-east-1`,
		`Set aws.region in ilmarinen.yaml or pass --region`,
	)

	err.WithVerify("aws configure get region")
	err.WithHelp("ilmarinen --help")

	return err
}

// ConfigError creates a configuration error for a missing or invalid setting
func ConfigError(setting, problem string) *HealError {
	err := New(ErrorTypeConfiguration, ServiceHealer, fmt.Sprintf("Invalid configuration: %s", setting))
	err.WithCause(problem)

	envVar := "ILMARINEN_" + strings.ToUpper(strings.ReplaceAll(setting, ".", "_"))
	err.WithSolutions(
		fmt.Sprintf("Set %s in ilmarinen.yaml", setting),
		fmt.Sprintf("export %s=...", envVar),
	)

	if cfgFile := os.Getenv("ILMARINEN_CONFIG"); cfgFile != "" {
		err.WithVerify(fmt.Sprintf("cat %s", cfgFile))
	}
	err.WithHelp("ilmarinen reconcile --help")

	return err
}

// ResourceNotFoundError creates an error for a configured resource that does not exist
func ResourceNotFoundError(service Service, id string) *HealError {
	err := New(ErrorTypeNotFound, service, fmt.Sprintf("%s resource %s not found", service, id))
	err.WithCause("The configured identifier does not match any resource in the region")

	switch service {
	case ServiceEC2:
		err.WithSolutions(
			"Check resource.id is an instance ID such as i-0123456789abcdef0",
			"Check aws.region matches the instance's region",
		)
		err.WithVerify(fmt.Sprintf("aws ec2 describe-instances --instance-ids %s", id))
	case ServiceRDS:
		err.WithSolutions(
			"Check resource.id is the DB instance identifier, not its ARN or endpoint",
			"Check aws.region matches the DB instance's region",
		)
		err.WithVerify(fmt.Sprintf("aws rds describe-db-instances --db-instance-identifier %s", id))
	}

	return err
}

// PermissionError creates a permission error for an AWS API call that failed with cause
func PermissionError(service Service, operation string, cause error) *HealError {
	err := Wrap(cause, ErrorTypePermission, service, fmt.Sprintf("Permission denied calling %s", operation))

	err.WithSolutions(
		fmt.Sprintf("Allow %s:%s on the resource in the execution role policy", strings.ToLower(string(service)), operation),
		`Use the IAM Policy Simulator to test permissions`,
	)
	err.WithVerify("aws sts get-caller-identity")

	return err
}

// NetworkError creates a network connectivity error for a request that never got a response
func NetworkError(service Service, endpoint string, cause error) *HealError {
	err := Wrap(cause, ErrorTypeNetwork, service, "Network connection failed")
	if cause != nil {
		err.WithCause(fmt.Sprintf("Cannot reach %s: %v", endpoint, cause))
	} else {
		err.WithCause(fmt.Sprintf("Cannot reach %s", endpoint))
	}

	err.WithSolutions(
		`Check internet connectivity`,
		`Verify VPC endpoints or NAT routes for the AWS APIs`,
		`Check proxy settings: echo $HTTP_PROXY $HTTPS_PROXY`,
	)

	switch service {
	case ServiceEC2:
		err.WithVerify("aws ec2 describe-regions")
	case ServiceRDS:
		err.WithVerify("aws rds describe-db-instances --max-records 20")
	default:
		err.WithVerify("aws sts get-caller-identity")
	}

	return err
}
