package cost

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	costexplorertypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/costwatch/costwatch/internal/types"
)

const costMetric = string(costexplorertypes.MetricUnblendedCost)

type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

type Converter interface {
	Convert(ctx context.Context, amount float64, unit string) (string, error)
}

type CostService struct {
	client    CostExplorerAPI
	converter Converter
	now       func() time.Time
}

func NewCostService(client CostExplorerAPI, converter Converter) *CostService {
	return &CostService{
		client:    client,
		converter: converter,
		now:       time.Now,
	}
}

// GetCost queries current-month unblended spend grouped by service, drops
// non-positive groups and converts every remaining amount to yen. The total
// is converted by its own call rather than summing the converted line items,
// since conversion is not additive after rounding.
func (cs *CostService) GetCost(ctx context.Context) (*types.CostSummary, error) {
	dt := cs.now()
	start := time.Date(dt.Year(), dt.Month(), 1, 0, 0, 0, 0, dt.Location()).Format("2006-01-02")
	end := dt.Format("2006-01-02")

	slog.Info("💰 getting AWS costs", "start", start, "end", end)

	periodStart, periodEnd, groups, err := cs.queryMonthlyGroups(ctx, start, end)
	if err != nil {
		return nil, err
	}

	kept := filterPositiveGroups(groups)
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no service group with positive cost between %s and %s", types.ErrNoCostData, start, end)
	}

	var total float64
	for _, group := range kept {
		total += group.amount
	}

	totalFormatted, err := cs.converter.Convert(ctx, total, kept[0].unit)
	if err != nil {
		return nil, err
	}

	lineItems, err := cs.convertLineItems(ctx, kept)
	if err != nil {
		return nil, err
	}

	return &types.CostSummary{
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		TotalAmount:    total,
		TotalFormatted: totalFormatted,
		LineItems:      lineItems,
	}, nil
}

func (cs *CostService) queryMonthlyGroups(ctx context.Context, start, end string) (string, string, []costexplorertypes.Group, error) {
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &costexplorertypes.DateInterval{
			Start: aws.String(start),
			End:   aws.String(end),
		},
		Granularity: costexplorertypes.GranularityMonthly,
		Metrics:     []string{costMetric},
		GroupBy: []costexplorertypes.GroupDefinition{
			{
				Type: costexplorertypes.GroupDefinitionTypeDimension,
				Key:  aws.String(string(costexplorertypes.DimensionService)),
			},
		},
	}

	var periodStart, periodEnd string
	var groups []costexplorertypes.Group

	// Collect all results across pages
	var nextToken *string
	for {
		input.NextPageToken = nextToken

		output, err := cs.client.GetCostAndUsage(ctx, input)
		if err != nil {
			return "", "", nil, fmt.Errorf("%w: %v", types.ErrBillingQueryFailed, err)
		}

		for _, result := range output.ResultsByTime {
			if result.TimePeriod != nil && periodStart == "" {
				periodStart = aws.ToString(result.TimePeriod.Start)
				periodEnd = aws.ToString(result.TimePeriod.End)
			}
			groups = append(groups, result.Groups...)
		}

		if output.NextPageToken == nil {
			break
		}
		nextToken = output.NextPageToken
	}

	return periodStart, periodEnd, groups, nil
}

type serviceCost struct {
	label  string
	amount float64
	unit   string
}

func filterPositiveGroups(groups []costexplorertypes.Group) []serviceCost {
	kept := []serviceCost{}

	for _, group := range groups {
		metric, ok := group.Metrics[costMetric]
		if !ok || metric.Amount == nil {
			continue
		}

		amount, err := strconv.ParseFloat(aws.ToString(metric.Amount), 64)
		if err != nil || amount <= 0 {
			continue
		}

		kept = append(kept, serviceCost{
			label:  strings.Join(group.Keys, ", "),
			amount: amount,
			unit:   aws.ToString(metric.Unit),
		})
	}

	return kept
}

// convertLineItems converts every group's amount concurrently. Results land
// in a slice indexed by group so the displayed order matches the billing
// response order no matter which conversion finishes first.
func (cs *CostService) convertLineItems(ctx context.Context, kept []serviceCost) ([]types.LineItem, error) {
	lineItems := make([]types.LineItem, len(kept))

	var wg sync.WaitGroup
	errChan := make(chan error, len(kept))

	for i, group := range kept {
		wg.Add(1)
		go func(i int, group serviceCost) {
			defer wg.Done()
			formatted, err := cs.converter.Convert(ctx, group.amount, group.unit)
			if err != nil {
				errChan <- fmt.Errorf("failed to convert cost for %s: %w", group.label, err)
				return
			}
			lineItems[i] = types.LineItem{
				Label:           group.label,
				AmountFormatted: formatted,
				AmountRaw:       group.amount,
			}
		}(i, group)
	}

	wg.Wait()
	close(errChan)

	// Check for any errors
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	return lineItems, nil
}
