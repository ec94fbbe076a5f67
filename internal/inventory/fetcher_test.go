package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/magicdevops/cloudleakage/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClients(region string, client *fakeEC2) *fakeClients {
	return &fakeClients{ec2ByRegion: map[string]*fakeEC2{region: client}}
}

func TestFetcher_Instances(t *testing.T) {
	launch := time.Now().Add(-48 * time.Hour)
	client := &fakeEC2{
		instances: []ec2types.Instance{
			{
				InstanceId:      aws.String("i-1"),
				InstanceType:    ec2types.InstanceTypeM5Large,
				State:           &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
				LaunchTime:      aws.Time(launch),
				PlatformDetails: aws.String("Linux/UNIX"),
				Architecture:    ec2types.ArchitectureValuesArm64,
				Placement:       &ec2types.Placement{AvailabilityZone: aws.String("us-east-1a")},
				Tags: []ec2types.Tag{
					{Key: aws.String("Name"), Value: aws.String("web-1")},
				},
			},
		},
	}

	fetcher := NewFetcher(util.NewLogger("test"))
	records, err := fetcher.Fetch(context.Background(), testClients("us-east-1", client), "us-east-1", KindInstance)

	require.NoError(t, err)
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, KindInstance, record.Kind)
	assert.Equal(t, "i-1", record.ID)
	assert.Equal(t, "us-east-1", record.Region)
	assert.Equal(t, "running", record.State)
	assert.Equal(t, "m5.large", record.InstanceType)
	assert.Equal(t, "Linux/UNIX", record.Platform)
	assert.Equal(t, "arm64", record.Architecture)
	assert.Equal(t, "us-east-1a", record.AvailabilityZone)
	assert.Equal(t, "web-1", record.Tags["Name"])
	assert.Equal(t, "web-1", record.DisplayName())
}

func TestFetcher_NormalizationDefaults(t *testing.T) {
	client := &fakeEC2{
		instances: []ec2types.Instance{
			{InstanceId: aws.String("i-bare")},
		},
	}

	fetcher := NewFetcher(util.NewLogger("test"))
	records, err := fetcher.Fetch(context.Background(), testClients("us-east-1", client), "us-east-1", KindInstance)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "linux", records[0].Platform)
	assert.Equal(t, "x86_64", records[0].Architecture)
	assert.Equal(t, "i-bare", records[0].DisplayName())
}

func TestFetcher_Snapshots(t *testing.T) {
	started := time.Now().Add(-100 * 24 * time.Hour)
	client := &fakeEC2{
		snapshots: []ec2types.Snapshot{
			{
				SnapshotId: aws.String("snap-1"),
				VolumeId:   aws.String("vol-1"),
				VolumeSize: aws.Int32(50),
				State:      ec2types.SnapshotStateCompleted,
				Encrypted:  aws.Bool(true),
				StartTime:  aws.Time(started),
			},
		},
	}

	fetcher := NewFetcher(util.NewLogger("test"))
	records, err := fetcher.Fetch(context.Background(), testClients("eu-west-1", client), "eu-west-1", KindSnapshot)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "snap-1", records[0].ID)
	assert.Equal(t, "vol-1", records[0].VolumeID)
	assert.Equal(t, int32(50), records[0].VolumeSize)
	assert.True(t, records[0].Encrypted)
}

func TestFetcher_ImageCreationDateParsing(t *testing.T) {
	client := &fakeEC2{
		images: []ec2types.Image{
			{ImageId: aws.String("ami-1"), CreationDate: aws.String("2025-01-15T10:30:00.000Z")},
			{ImageId: aws.String("ami-2"), CreationDate: aws.String("garbage")},
		},
	}

	fetcher := NewFetcher(util.NewLogger("test"))
	records, err := fetcher.Fetch(context.Background(), testClients("us-east-1", client), "us-east-1", KindAMI)

	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NotNil(t, records[0].CreationDate)
	assert.Equal(t, 2025, records[0].CreationDate.Year())
	assert.Nil(t, records[1].CreationDate, "unparseable creation date is dropped, not fatal")
}

func TestFetcher_AuthDeniedReturnsEmpty(t *testing.T) {
	client := &fakeEC2{
		err: &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "denied"},
	}

	fetcher := NewFetcher(util.NewLogger("test"))
	records, err := fetcher.Fetch(context.Background(), testClients("us-east-1", client), "us-east-1", KindInstance)

	require.NoError(t, err, "auth denial is an expected non-fatal condition")
	assert.Empty(t, records)
}

func TestFetcher_ThrottleRetriesThenSucceeds(t *testing.T) {
	client := &fakeEC2{
		throttleFirst: 2,
		volumes: []ec2types.Volume{
			{VolumeId: aws.String("vol-1"), Size: aws.Int32(8), State: ec2types.VolumeStateInUse},
		},
	}

	fetcher := NewFetcher(util.NewLogger("test"))
	fetcher.backoffBase = time.Millisecond
	records, err := fetcher.Fetch(context.Background(), testClients("us-east-1", client), "us-east-1", KindVolume)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int32(3), client.calls.Load())
}

func TestFetcher_ThrottleExhaustsAttempts(t *testing.T) {
	client := &fakeEC2{throttleFirst: 10}

	fetcher := NewFetcher(util.NewLogger("test"))
	fetcher.backoffBase = time.Millisecond
	_, err := fetcher.Fetch(context.Background(), testClients("us-east-1", client), "us-east-1", KindInstance)

	require.Error(t, err)
	assert.Equal(t, int32(fetchMaxAttempts), client.calls.Load())
}

func TestFetcher_FatalErrorPropagates(t *testing.T) {
	client := &fakeEC2{
		err: &smithy.GenericAPIError{Code: "ValidationError", Message: "bad request"},
	}

	fetcher := NewFetcher(util.NewLogger("test"))
	_, err := fetcher.Fetch(context.Background(), testClients("us-east-1", client), "us-east-1", KindInstance)

	require.Error(t, err)
	assert.Equal(t, int32(1), client.calls.Load(), "fatal errors are not retried")
}

func TestFetcher_UnknownKind(t *testing.T) {
	fetcher := NewFetcher(util.NewLogger("test"))
	_, err := fetcher.Fetch(context.Background(), testClients("us-east-1", &fakeEC2{}), "us-east-1", Kind("bucket"))
	assert.Error(t, err)
}
