package client

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
)

// Cost Explorer is a global service served out of us-east-1 only.
const costExplorerRegion = "us-east-1"

func NewCostExplorerClient(cfg aws.Config) *costexplorer.Client {
	cfg.Region = costExplorerRegion

	costExplorerClient := costexplorer.NewFromConfig(cfg)

	return costExplorerClient
}
