package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/magicdevops/cloudleakage/internal/analyzer"
	"github.com/magicdevops/cloudleakage/internal/awsx"
)

// Utilization samples cover this trailing window at hourly resolution.
const (
	utilizationWindow = 7 * 24 * time.Hour
	utilizationPeriod = 3600
)

// Utilization summarizes an instance's trailing resource usage.
type Utilization struct {
	InstanceID    string  `json:"instance_id"`
	WindowDays    int     `json:"window_days"`
	CPUAverage    float64 `json:"cpu_average"`
	CPUMax        float64 `json:"cpu_max"`
	NetworkInAvg  float64 `json:"network_in_avg"`
	NetworkOutAvg float64 `json:"network_out_avg"`
	Samples       int     `json:"samples"`
}

// FetchUtilization pulls CPU and network statistics for one instance over the
// trailing window. Missing metric streams (stopped instances, no agent)
// produce zero values, not errors.
func FetchUtilization(ctx context.Context, client awsx.CloudWatchAPI, instanceID string, now time.Time) (Utilization, error) {
	utilization := Utilization{
		InstanceID: instanceID,
		WindowDays: int(utilizationWindow.Hours() / 24),
	}

	cpuAvg, cpuMax, samples, err := fetchMetric(ctx, client, instanceID, "CPUUtilization", now)
	if err != nil {
		return Utilization{}, fmt.Errorf("fetching CPU utilization for %s: %w", instanceID, err)
	}
	utilization.CPUAverage = cpuAvg
	utilization.CPUMax = cpuMax
	utilization.Samples = samples

	netIn, _, _, err := fetchMetric(ctx, client, instanceID, "NetworkIn", now)
	if err != nil {
		return Utilization{}, fmt.Errorf("fetching network-in for %s: %w", instanceID, err)
	}
	utilization.NetworkInAvg = netIn

	netOut, _, _, err := fetchMetric(ctx, client, instanceID, "NetworkOut", now)
	if err != nil {
		return Utilization{}, fmt.Errorf("fetching network-out for %s: %w", instanceID, err)
	}
	utilization.NetworkOutAvg = netOut

	return utilization, nil
}

func fetchMetric(ctx context.Context, client awsx.CloudWatchAPI, instanceID, metricName string, now time.Time) (avg, max float64, samples int, err error) {
	out, err := client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/EC2"),
		MetricName: aws.String(metricName),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("InstanceId"), Value: aws.String(instanceID)},
		},
		StartTime:  aws.Time(now.Add(-utilizationWindow)),
		EndTime:    aws.Time(now),
		Period:     aws.Int32(utilizationPeriod),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage, cwtypes.StatisticMaximum},
	})
	if err != nil {
		return 0, 0, 0, err
	}

	if len(out.Datapoints) == 0 {
		return 0, 0, 0, nil
	}

	var sum float64
	for _, point := range out.Datapoints {
		sum += aws.ToFloat64(point.Average)
		if value := aws.ToFloat64(point.Maximum); value > max {
			max = value
		}
	}

	return sum / float64(len(out.Datapoints)), max, len(out.Datapoints), nil
}

// FetchAlarms lists every metric alarm in the region, paginated, converted to
// the analyzer's shape.
func FetchAlarms(ctx context.Context, client awsx.CloudWatchAPI) ([]analyzer.Alarm, error) {
	var alarms []analyzer.Alarm

	paginator := cloudwatch.NewDescribeAlarmsPaginator(client, &cloudwatch.DescribeAlarmsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing alarms: %w", err)
		}
		for _, alarm := range page.MetricAlarms {
			alarms = append(alarms, convertAlarm(alarm))
		}
	}

	return alarms, nil
}

func convertAlarm(alarm cwtypes.MetricAlarm) analyzer.Alarm {
	converted := analyzer.Alarm{
		Name:       aws.ToString(alarm.AlarmName),
		MetricName: aws.ToString(alarm.MetricName),
		Namespace:  aws.ToString(alarm.Namespace),
		Threshold:  aws.ToFloat64(alarm.Threshold),
		Actions:    alarm.AlarmActions,
		State:      string(alarm.StateValue),
	}
	if len(alarm.Dimensions) > 0 {
		converted.Dimensions = make(map[string]string, len(alarm.Dimensions))
		for _, dimension := range alarm.Dimensions {
			converted.Dimensions[aws.ToString(dimension.Name)] = aws.ToString(dimension.Value)
		}
	}

	return converted
}
