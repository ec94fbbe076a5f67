package inventory

import (
	"context"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/magicdevops/cloudleakage/internal/awsx"
)

// fakeEC2 serves canned responses for one region. Setting err fails every
// call; throttleFirst fails that many leading calls with a throttle code
// before succeeding.
type fakeEC2 struct {
	instances []ec2types.Instance
	snapshots []ec2types.Snapshot
	images    []ec2types.Image
	volumes   []ec2types.Volume
	regions   []string

	err           error
	throttleFirst int32
	block         bool

	calls atomic.Int32
}

func (f *fakeEC2) gate(ctx context.Context) error {
	call := f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	if call <= f.throttleFirst {
		return &smithy.GenericAPIError{Code: "Throttling", Message: "rate exceeded"}
	}
	return nil
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: f.instances}},
	}, nil
}

func (f *fakeEC2) DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	return &ec2.DescribeSnapshotsOutput{Snapshots: f.snapshots}, nil
}

func (f *fakeEC2) DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	return &ec2.DescribeImagesOutput{Images: f.images}, nil
}

func (f *fakeEC2) DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	return &ec2.DescribeVolumesOutput{Volumes: f.volumes}, nil
}

func (f *fakeEC2) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	out := &ec2.DescribeRegionsOutput{}
	for _, name := range f.regions {
		out.Regions = append(out.Regions, ec2types.Region{RegionName: aws.String(name)})
	}
	return out, nil
}

type fakeCloudWatch struct {
	avgByMetric map[string]float64
	maxByMetric map[string]float64
	alarms      []cwtypes.MetricAlarm
	err         error
}

func (f *fakeCloudWatch) GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	metric := aws.ToString(params.MetricName)
	avg, ok := f.avgByMetric[metric]
	if !ok {
		return &cloudwatch.GetMetricStatisticsOutput{}, nil
	}
	return &cloudwatch.GetMetricStatisticsOutput{
		Datapoints: []cwtypes.Datapoint{
			{Average: aws.Float64(avg), Maximum: aws.Float64(f.maxByMetric[metric])},
		},
	}, nil
}

func (f *fakeCloudWatch) DescribeAlarms(ctx context.Context, params *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatch.DescribeAlarmsOutput{MetricAlarms: f.alarms}, nil
}

// fakeClients implements awsx.ClientFactory over per-region fakes. Regions
// without an entry get an empty fake.
type fakeClients struct {
	ec2ByRegion map[string]*fakeEC2
	cw          *fakeCloudWatch
}

func (f *fakeClients) EC2(region string) awsx.EC2API {
	if client, ok := f.ec2ByRegion[region]; ok {
		return client
	}
	return &fakeEC2{}
}

func (f *fakeClients) CloudWatch(region string) awsx.CloudWatchAPI {
	if f.cw != nil {
		return f.cw
	}
	return &fakeCloudWatch{}
}
