package cost

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	costexplorertypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/costwatch/costwatch/internal/mocks"
	"github.com/costwatch/costwatch/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConverter struct {
	convertFunc func(ctx context.Context, amount float64, unit string) (string, error)
}

func (m *mockConverter) Convert(ctx context.Context, amount float64, unit string) (string, error) {
	return m.convertFunc(ctx, amount, unit)
}

func yenConverter() *mockConverter {
	return &mockConverter{
		convertFunc: func(ctx context.Context, amount float64, unit string) (string, error) {
			return fmt.Sprintf("¥%.0f", amount*150), nil
		},
	}
}

func usdGroup(service string, amount string) costexplorertypes.Group {
	return costexplorertypes.Group{
		Keys: []string{service},
		Metrics: map[string]costexplorertypes.MetricValue{
			"UnblendedCost": {
				Amount: aws.String(amount),
				Unit:   aws.String("USD"),
			},
		},
	}
}

func monthlyResult(start, end string, groups ...costexplorertypes.Group) costexplorertypes.ResultByTime {
	return costexplorertypes.ResultByTime{
		TimePeriod: &costexplorertypes.DateInterval{
			Start: aws.String(start),
			End:   aws.String(end),
		},
		Groups: groups,
	}
}

func TestCostService_GetCost_FiltersAndSums(t *testing.T) {
	var gotInput *costexplorer.GetCostAndUsageInput
	client := &mocks.MockCostExplorerAPI{
		GetCostAndUsageFunc: func(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
			gotInput = params
			return &costexplorer.GetCostAndUsageOutput{
				ResultsByTime: []costexplorertypes.ResultByTime{
					monthlyResult("2026-08-01", "2026-08-30",
						usdGroup("EC2", "120.50"),
						usdGroup("S3", "-5.00"),
						usdGroup("CloudWatch", "0"),
						usdGroup("Route 53", "not-a-number"),
					),
				},
			}, nil
		},
	}

	service := NewCostService(client, yenConverter())
	service.now = func() time.Time {
		return time.Date(2026, time.August, 30, 10, 0, 0, 0, time.UTC)
	}

	summary, err := service.GetCost(context.Background())

	require.NoError(t, err)
	require.NotNil(t, gotInput)
	assert.Equal(t, "2026-08-01", aws.ToString(gotInput.TimePeriod.Start))
	assert.Equal(t, "2026-08-30", aws.ToString(gotInput.TimePeriod.End))
	assert.Equal(t, costexplorertypes.GranularityMonthly, gotInput.Granularity)
	assert.Equal(t, []string{"UnblendedCost"}, gotInput.Metrics)

	assert.Equal(t, "2026-08-01", summary.PeriodStart)
	assert.Equal(t, "2026-08-30", summary.PeriodEnd)
	assert.InDelta(t, 120.50, summary.TotalAmount, 0.0001)
	assert.Equal(t, "¥18075", summary.TotalFormatted)

	require.Len(t, summary.LineItems, 1, "non-positive and unparsable groups are dropped")
	assert.Equal(t, "EC2", summary.LineItems[0].Label)
	assert.InDelta(t, 120.50, summary.LineItems[0].AmountRaw, 0.0001)
	assert.Equal(t, "¥18075", summary.LineItems[0].AmountFormatted)

	var itemTotal float64
	for _, item := range summary.LineItems {
		itemTotal += item.AmountRaw
	}
	assert.Equal(t, summary.TotalAmount, itemTotal)
}

func TestCostService_GetCost_MergesPages(t *testing.T) {
	pages := []*costexplorer.GetCostAndUsageOutput{
		{
			ResultsByTime: []costexplorertypes.ResultByTime{
				monthlyResult("2026-08-01", "2026-08-30", usdGroup("EC2", "100")),
			},
			NextPageToken: aws.String("page-2"),
		},
		{
			ResultsByTime: []costexplorertypes.ResultByTime{
				monthlyResult("2026-08-01", "2026-08-30", usdGroup("Lambda", "25")),
			},
		},
	}

	call := 0
	client := &mocks.MockCostExplorerAPI{
		GetCostAndUsageFunc: func(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
			if call == 1 {
				assert.Equal(t, "page-2", aws.ToString(params.NextPageToken))
			}
			page := pages[call]
			call++
			return page, nil
		},
	}

	service := NewCostService(client, yenConverter())
	summary, err := service.GetCost(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, call)
	require.Len(t, summary.LineItems, 2)
	assert.Equal(t, "EC2", summary.LineItems[0].Label)
	assert.Equal(t, "Lambda", summary.LineItems[1].Label)
	assert.InDelta(t, 125, summary.TotalAmount, 0.0001)
}

func TestCostService_GetCost_NoPositiveGroups(t *testing.T) {
	tests := []struct {
		name   string
		groups []costexplorertypes.Group
	}{
		{
			name:   "empty response",
			groups: nil,
		},
		{
			name: "only non-positive groups",
			groups: []costexplorertypes.Group{
				usdGroup("S3", "-5.00"),
				usdGroup("CloudWatch", "0"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mocks.MockCostExplorerAPI{
				GetCostAndUsageFunc: func(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
					return &costexplorer.GetCostAndUsageOutput{
						ResultsByTime: []costexplorertypes.ResultByTime{
							monthlyResult("2026-08-01", "2026-08-30", tt.groups...),
						},
					}, nil
				},
			}

			service := NewCostService(client, yenConverter())
			_, err := service.GetCost(context.Background())

			assert.ErrorIs(t, err, types.ErrNoCostData)
		})
	}
}

func TestCostService_GetCost_BillingQueryFailed(t *testing.T) {
	client := &mocks.MockCostExplorerAPI{
		GetCostAndUsageFunc: func(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
			return nil, errors.New("expired credentials")
		},
	}

	service := NewCostService(client, yenConverter())
	_, err := service.GetCost(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBillingQueryFailed)
	assert.Contains(t, err.Error(), "expired credentials")
}

func TestCostService_GetCost_ConversionErrorPropagates(t *testing.T) {
	client := &mocks.MockCostExplorerAPI{
		GetCostAndUsageFunc: func(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
			return &costexplorer.GetCostAndUsageOutput{
				ResultsByTime: []costexplorertypes.ResultByTime{
					monthlyResult("2026-08-01", "2026-08-30", usdGroup("EC2", "10")),
				},
			}, nil
		},
	}
	converter := &mockConverter{
		convertFunc: func(ctx context.Context, amount float64, unit string) (string, error) {
			return "", fmt.Errorf("%w: rate unavailable", types.ErrConversionFailed)
		},
	}

	service := NewCostService(client, converter)
	_, err := service.GetCost(context.Background())

	assert.ErrorIs(t, err, types.ErrConversionFailed)
}

func TestCostService_GetCost_JoinsDimensionKeys(t *testing.T) {
	client := &mocks.MockCostExplorerAPI{
		GetCostAndUsageFunc: func(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
			group := costexplorertypes.Group{
				Keys: []string{"EC2 - Other", "BoxUsage"},
				Metrics: map[string]costexplorertypes.MetricValue{
					"UnblendedCost": {Amount: aws.String("1.25"), Unit: aws.String("USD")},
				},
			}
			return &costexplorer.GetCostAndUsageOutput{
				ResultsByTime: []costexplorertypes.ResultByTime{
					monthlyResult("2026-08-01", "2026-08-30", group),
				},
			}, nil
		},
	}

	service := NewCostService(client, yenConverter())
	summary, err := service.GetCost(context.Background())

	require.NoError(t, err)
	require.Len(t, summary.LineItems, 1)
	assert.Equal(t, "EC2 - Other, BoxUsage", summary.LineItems[0].Label)
}
