package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/costwatch/costwatch/internal/types"
)

const (
	webhookParameterName = "SlackWebHookUrl"
	targetsSegment       = "Targets"

	accessKeyField = "AccessKeyId"
	secretKeyField = "SecretAccessKey"
)

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

type SecretsService struct {
	client SSMAPI
	prefix string
}

type SecretsServiceOpts struct {
	// Prefix is the parameter store namespace the app reads from,
	// e.g. "/CostWatch".
	Prefix string
}

func NewSecretsService(client SSMAPI, opts SecretsServiceOpts) *SecretsService {
	return &SecretsService{
		client: client,
		prefix: strings.TrimSuffix(opts.Prefix, "/"),
	}
}

// GetWebhookURL reads the Slack incoming webhook URL from
// <prefix>/SlackWebHookUrl with decryption.
func (ss *SecretsService) GetWebhookURL(ctx context.Context) (string, error) {
	name := ss.prefix + "/" + webhookParameterName

	output, err := ss.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: parameter %s not found", types.ErrConfigurationMissing, name)
		}
		return "", fmt.Errorf("failed to read webhook url parameter: %v", err)
	}

	if output.Parameter == nil || aws.ToString(output.Parameter.Value) == "" {
		return "", fmt.Errorf("%w: parameter %s is empty", types.ErrConfigurationMissing, name)
	}

	return aws.ToString(output.Parameter.Value), nil
}

// GetAccountTargets enumerates every credential pair stored under
// <prefix>/Targets/<accountName>/<field>, following pagination tokens until
// the store reports no more results. Targets are returned sorted by account
// name so downstream notification order is stable across invocations.
func (ss *SecretsService) GetAccountTargets(ctx context.Context) ([]types.AccountTarget, error) {
	pathPrefix := ss.prefix + "/" + targetsSegment

	credentials := map[string]types.AccountCredentials{}

	var nextToken *string
	for {
		output, err := ss.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(pathPrefix),
			Recursive:      aws.Bool(true),
			WithDecryption: aws.Bool(true),
			NextToken:      nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate target account parameters: %v", err)
		}

		for _, parameter := range output.Parameters {
			ss.mergeParameter(credentials, parameter)
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	names := make([]string, 0, len(credentials))
	for name := range credentials {
		names = append(names, name)
	}
	sort.Strings(names)

	targets := make([]types.AccountTarget, 0, len(names))
	for _, name := range names {
		targets = append(targets, types.AccountTarget{
			Name:        name,
			Credentials: credentials[name],
		})
	}

	return targets, nil
}

// mergeParameter assigns one parameter value into the account it belongs to.
// The trailing two path segments name the account and the credential field.
func (ss *SecretsService) mergeParameter(credentials map[string]types.AccountCredentials, parameter ssmtypes.Parameter) {
	name := aws.ToString(parameter.Name)

	segments := strings.Split(strings.Trim(name, "/"), "/")
	if len(segments) < 2 {
		slog.Warn("⚠️ skipping malformed target parameter", "parameter", name)
		return
	}

	accountName := segments[len(segments)-2]
	field := segments[len(segments)-1]

	creds := credentials[accountName]
	switch field {
	case accessKeyField:
		creds.AccessKeyID = aws.ToString(parameter.Value)
	case secretKeyField:
		creds.SecretAccessKey = aws.ToString(parameter.Value)
	default:
		slog.Warn("⚠️ skipping unknown target credential field", "parameter", name, "field", field)
		return
	}
	credentials[accountName] = creds
}
