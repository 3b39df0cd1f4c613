package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/costwatch/costwatch/internal/types"
)

type IAMAPI interface {
	ListAccountAliases(ctx context.Context, params *iam.ListAccountAliasesInput, optFns ...func(*iam.Options)) (*iam.ListAccountAliasesOutput, error)
}

type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type IdentityService struct {
	iamClient IAMAPI
	stsClient STSAPI
}

func NewIdentityService(iamClient IAMAPI, stsClient STSAPI) *IdentityService {
	return &IdentityService{
		iamClient: iamClient,
		stsClient: stsClient,
	}
}

// GetAliasName returns the account's alias names joined with ", ". The second
// return is false when the account has no alias, so callers can fall back to
// the target's logical name.
func (is *IdentityService) GetAliasName(ctx context.Context) (string, bool, error) {
	output, err := is.iamClient.ListAccountAliases(ctx, &iam.ListAccountAliasesInput{})
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", types.ErrIdentityLookupFailed, err)
	}

	if len(output.AccountAliases) == 0 {
		return "", false, nil
	}

	return strings.Join(output.AccountAliases, ", "), true, nil
}

// GetAccountID returns the numeric account id of the credentials in use.
// Only used for run logging.
func (is *IdentityService) GetAccountID(ctx context.Context) (string, error) {
	output, err := is.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %v", err)
	}

	return aws.ToString(output.Account), nil
}
