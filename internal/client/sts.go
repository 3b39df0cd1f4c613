package client

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

func NewSTSClient(cfg aws.Config) *sts.Client {
	stsClient := sts.NewFromConfig(cfg)

	return stsClient
}
