package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/magicdevops/cloudleakage/internal/awsx"
)

const (
	// Unset provider fields normalize to these defaults.
	defaultPlatform     = "linux"
	defaultArchitecture = "x86_64"

	fetchMaxAttempts = 3
	fetchMaxElapsed  = 60 * time.Second
)

// Fetcher retrieves and normalizes one region's worth of a resource kind.
// Throttling is retried with exponential backoff, bounded by attempt count and
// total elapsed time. Authorization denials yield an empty list with a logged
// warning, since lack of access to one region is expected and non-fatal. This
// makes a denied region indistinguishable from a genuinely empty one except
// via logs.
type Fetcher struct {
	logger *slog.Logger

	// Backoff unit, doubled per attempt. Shortened in tests.
	backoffBase time.Duration
}

func NewFetcher(logger *slog.Logger) *Fetcher {
	return &Fetcher{logger: logger, backoffBase: time.Second}
}

func (f *Fetcher) Fetch(ctx context.Context, clients awsx.ClientFactory, region string, kind Kind) ([]Resource, error) {
	start := time.Now()

	for attempt := 1; ; attempt++ {
		records, err := f.fetchOnce(ctx, clients, region, kind)
		if err == nil {
			return records, nil
		}

		switch awsx.Classify(err) {
		case awsx.ErrorAuth:
			f.logger.Warn("region access denied, returning empty result",
				"region", region,
				"kind", kind,
				"code", awsx.ErrorCode(err),
			)
			return []Resource{}, nil
		case awsx.ErrorThrottle:
			if attempt >= fetchMaxAttempts || time.Since(start) >= fetchMaxElapsed {
				return nil, fmt.Errorf("fetching %s in %s: throttled after %d attempts: %w", kind, region, attempt, err)
			}
			delay := f.backoffBase << (attempt - 1)
			f.logger.Debug("throttled, backing off",
				"region", region,
				"kind", kind,
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			return nil, fmt.Errorf("fetching %s in %s: %w", kind, region, err)
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, clients awsx.ClientFactory, region string, kind Kind) ([]Resource, error) {
	client := clients.EC2(region)

	switch kind {
	case KindInstance:
		return fetchInstances(ctx, client, region)
	case KindSnapshot:
		return fetchSnapshots(ctx, client, region)
	case KindAMI:
		return fetchImages(ctx, client, region)
	case KindVolume:
		return fetchVolumes(ctx, client, region)
	default:
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
}

func fetchInstances(ctx context.Context, client awsx.EC2API, region string) ([]Resource, error) {
	var records []Resource

	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				records = append(records, normalizeInstance(instance, region))
			}
		}
	}

	return records, nil
}

func fetchSnapshots(ctx context.Context, client awsx.EC2API, region string) ([]Resource, error) {
	var records []Resource

	paginator := ec2.NewDescribeSnapshotsPaginator(client, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, snapshot := range page.Snapshots {
			records = append(records, normalizeSnapshot(snapshot, region))
		}
	}

	return records, nil
}

func fetchImages(ctx context.Context, client awsx.EC2API, region string) ([]Resource, error) {
	var records []Resource

	paginator := ec2.NewDescribeImagesPaginator(client, &ec2.DescribeImagesInput{
		Owners: []string{"self"},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, image := range page.Images {
			records = append(records, normalizeImage(image, region))
		}
	}

	return records, nil
}

func fetchVolumes(ctx context.Context, client awsx.EC2API, region string) ([]Resource, error) {
	var records []Resource

	paginator := ec2.NewDescribeVolumesPaginator(client, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, volume := range page.Volumes {
			records = append(records, normalizeVolume(volume, region))
		}
	}

	return records, nil
}

func normalizeInstance(instance ec2types.Instance, region string) Resource {
	platform := aws.ToString(instance.PlatformDetails)
	if platform == "" {
		platform = defaultPlatform
	}
	architecture := string(instance.Architecture)
	if architecture == "" {
		architecture = defaultArchitecture
	}

	record := Resource{
		Kind:            KindInstance,
		ID:              aws.ToString(instance.InstanceId),
		Region:          region,
		InstanceType:    string(instance.InstanceType),
		Platform:        platform,
		Architecture:    architecture,
		LaunchTime:      instance.LaunchTime,
		PrivateIP:       aws.ToString(instance.PrivateIpAddress),
		PublicIP:        aws.ToString(instance.PublicIpAddress),
		VpcID:           aws.ToString(instance.VpcId),
		StateTransition: aws.ToString(instance.StateTransitionReason),
		Tags:            tagMap(instance.Tags),
	}
	if instance.State != nil {
		record.State = string(instance.State.Name)
	}
	if instance.Placement != nil {
		record.AvailabilityZone = aws.ToString(instance.Placement.AvailabilityZone)
	}

	return record
}

func normalizeSnapshot(snapshot ec2types.Snapshot, region string) Resource {
	return Resource{
		Kind:        KindSnapshot,
		ID:          aws.ToString(snapshot.SnapshotId),
		Region:      region,
		State:       string(snapshot.State),
		VolumeID:    aws.ToString(snapshot.VolumeId),
		VolumeSize:  aws.ToInt32(snapshot.VolumeSize),
		Encrypted:   aws.ToBool(snapshot.Encrypted),
		StartTime:   snapshot.StartTime,
		Description: aws.ToString(snapshot.Description),
		Tags:        tagMap(snapshot.Tags),
	}
}

func normalizeImage(image ec2types.Image, region string) Resource {
	record := Resource{
		Kind:        KindAMI,
		ID:          aws.ToString(image.ImageId),
		Region:      region,
		State:       string(image.State),
		Name:        aws.ToString(image.Name),
		OwnerID:     aws.ToString(image.OwnerId),
		Public:      aws.ToBool(image.Public),
		Description: aws.ToString(image.Description),
		Tags:        tagMap(image.Tags),
	}
	if platform := aws.ToString(image.PlatformDetails); platform != "" {
		record.Platform = platform
	} else {
		record.Platform = defaultPlatform
	}
	// CreationDate comes back as an RFC3339 string; a malformed value is
	// dropped rather than failing the whole record.
	if raw := aws.ToString(image.CreationDate); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			record.CreationDate = &parsed
		}
	}

	return record
}

func normalizeVolume(volume ec2types.Volume, region string) Resource {
	record := Resource{
		Kind:       KindVolume,
		ID:         aws.ToString(volume.VolumeId),
		Region:     region,
		State:      string(volume.State),
		VolumeSize: aws.ToInt32(volume.Size),
		VolumeType: string(volume.VolumeType),
		Encrypted:  aws.ToBool(volume.Encrypted),
		StartTime:  volume.CreateTime,
		Tags:       tagMap(volume.Tags),
	}
	if len(volume.Attachments) > 0 {
		record.Extra = map[string]string{
			"attached_instance": aws.ToString(volume.Attachments[0].InstanceId),
		}
	}

	return record
}

func tagMap(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		out[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return out
}
