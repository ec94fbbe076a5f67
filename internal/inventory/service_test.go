package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"
	"github.com/magicdevops/cloudleakage/internal/awsx"
	"github.com/magicdevops/cloudleakage/internal/database/models"
	"github.com/magicdevops/cloudleakage/internal/testutil"
	"github.com/magicdevops/cloudleakage/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newServiceWithClients(t *testing.T, db *gorm.DB, clients awsx.ClientFactory) *Service {
	t.Helper()
	logger := util.NewLogger("test")
	fetcher := NewFetcher(logger)
	fetcher.backoffBase = time.Millisecond

	return &Service{
		db:        db,
		cache:     NewCache(5 * time.Minute),
		collector: NewCollector(fetcher, logger, 5, 5*time.Second),
		logger:    logger,
		derive: func(ctx context.Context, accountID uuid.UUID) (awsx.ClientFactory, error) {
			return clients, nil
		},
		now: time.Now,
	}
}

func singleRegionClients(region string, fake *fakeEC2) *fakeClients {
	fake.regions = []string{region}
	clients := &fakeClients{ec2ByRegion: map[string]*fakeEC2{region: fake}}
	if region != awsx.DefaultRegion {
		// Region discovery goes through the home region.
		home := &fakeEC2{regions: []string{region}}
		clients.ec2ByRegion[awsx.DefaultRegion] = home
	}
	return clients
}

func TestService_ListResourcesCaches(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fake := instanceFake("i-1")
	service := newServiceWithClients(t, db, singleRegionClients("us-east-1", fake))
	accountID := uuid.New()

	first, err := service.ListResources(context.Background(), accountID, KindInstance, "us-east-1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	callsAfterFirst := fake.calls.Load()

	second, err := service.ListResources(context.Background(), accountID, KindInstance, "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, fake.calls.Load(), "second read is served from cache")
}

func TestService_ListResourcesSessionErrorPropagates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	service := newServiceWithClients(t, db, &fakeClients{})
	service.derive = func(ctx context.Context, accountID uuid.UUID) (awsx.ClientFactory, error) {
		return nil, &awsx.SessionError{Kind: awsx.SessionNotConnected, AccountID: accountID.String()}
	}

	_, err := service.ListResources(context.Background(), uuid.New(), KindInstance, "")
	assert.True(t, awsx.IsSessionError(err, awsx.SessionNotConnected))
}

func TestService_SyncPersistsAndStampsLastSync(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)
	account := testutil.CreateKeypairAccount(t, db, enc, "sync-target")

	launch := time.Now().Add(-72 * time.Hour).UTC().Truncate(time.Second)
	fake := &fakeEC2{instances: []ec2types.Instance{
		{
			InstanceId:   aws.String("i-sync"),
			InstanceType: ec2types.InstanceTypeT3Micro,
			State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
			LaunchTime:   aws.Time(launch),
		},
	}}
	service := newServiceWithClients(t, db, singleRegionClients("us-east-1", fake))

	count, err := service.Sync(context.Background(), account.ID, KindInstance)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var rows []models.Instance
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "i-sync", rows[0].InstanceID)
	assert.Equal(t, "t3.micro", rows[0].InstanceType)
	assert.Equal(t, account.ID, rows[0].AccountID)

	var updated models.Account
	require.NoError(t, db.First(&updated, "id = ?", account.ID).Error)
	require.NotNil(t, updated.LastSync)
	assert.WithinDuration(t, time.Now(), *updated.LastSync, time.Minute)
}

func TestService_SyncUpsertIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)
	account := testutil.CreateKeypairAccount(t, db, enc, "resync")

	fake := &fakeEC2{snapshots: []ec2types.Snapshot{
		{SnapshotId: aws.String("snap-1"), VolumeId: aws.String("vol-1"), VolumeSize: aws.Int32(10)},
	}}
	service := newServiceWithClients(t, db, singleRegionClients("us-east-1", fake))

	_, err := service.Sync(context.Background(), account.ID, KindSnapshot)
	require.NoError(t, err)
	_, err = service.Sync(context.Background(), account.ID, KindSnapshot)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Snapshot{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "re-sync updates in place instead of duplicating")
}

func TestService_SyncDeletedAccountIsNoOpOnLastSync(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fake := instanceFake()
	service := newServiceWithClients(t, db, singleRegionClients("us-east-1", fake))

	// The session was derived before deletion; collection still completes.
	count, err := service.Sync(context.Background(), uuid.New(), KindInstance)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_InvalidateAccountDropsCache(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fake := instanceFake("i-1")
	service := newServiceWithClients(t, db, singleRegionClients("us-east-1", fake))
	accountID := uuid.New()

	_, err := service.ListResources(context.Background(), accountID, KindInstance, "us-east-1")
	require.NoError(t, err)
	callsAfterFirst := fake.calls.Load()

	service.InvalidateAccount(accountID)

	_, err = service.ListResources(context.Background(), accountID, KindInstance, "us-east-1")
	require.NoError(t, err)
	assert.Greater(t, fake.calls.Load(), callsAfterFirst, "invalidation forces a refetch")
}

func TestService_Recommendations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stoppedSince := time.Now().AddDate(0, 0, -95)

	fake := &fakeEC2{instances: []ec2types.Instance{
		{
			InstanceId:   aws.String("i-idle"),
			InstanceType: ec2types.InstanceTypeM5Large,
			State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		},
		{
			InstanceId:   aws.String("i-old-gen"),
			InstanceType: ec2types.InstanceTypeT2Micro,
			State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		},
		{
			InstanceId: aws.String("i-parked"),
			State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped},
			LaunchTime: aws.Time(stoppedSince),
		},
	}}
	clients := singleRegionClients("us-east-1", fake)
	clients.cw = &fakeCloudWatch{
		avgByMetric: map[string]float64{"CPUUtilization": 5},
		maxByMetric: map[string]float64{"CPUUtilization": 12},
	}
	service := newServiceWithClients(t, db, clients)

	recommendations, err := service.Recommendations(context.Background(), uuid.New())
	require.NoError(t, err)

	byResource := make(map[string][]string)
	for _, rec := range recommendations {
		byResource[rec.ResourceID] = append(byResource[rec.ResourceID], rec.Type)
	}

	assert.Contains(t, byResource["i-idle"], "underutilized")
	assert.Contains(t, byResource["i-old-gen"], "outdated_generation")
	assert.Contains(t, byResource["i-parked"], "long_stopped")
}

func TestService_RecommendationsUtilizationFailureDegrades(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fake := instanceFake("i-1")
	fake.instances[0].State = &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning}
	clients := singleRegionClients("us-east-1", fake)
	clients.cw = &fakeCloudWatch{err: assert.AnError}
	service := newServiceWithClients(t, db, clients)

	recommendations, err := service.Recommendations(context.Background(), uuid.New())
	require.NoError(t, err, "a utilization fetch failure never fails the whole call")
	assert.Empty(t, recommendations)
}

func TestService_Utilization(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clients := &fakeClients{cw: &fakeCloudWatch{
		avgByMetric: map[string]float64{"CPUUtilization": 42.5, "NetworkIn": 1024, "NetworkOut": 2048},
		maxByMetric: map[string]float64{"CPUUtilization": 80},
	}}
	service := newServiceWithClients(t, db, clients)

	utilization, err := service.Utilization(context.Background(), uuid.New(), "i-1", "")
	require.NoError(t, err)
	assert.Equal(t, "i-1", utilization.InstanceID)
	assert.InDelta(t, 42.5, utilization.CPUAverage, 1e-9)
	assert.InDelta(t, 80, utilization.CPUMax, 1e-9)
	assert.InDelta(t, 1024, utilization.NetworkInAvg, 1e-9)
	assert.InDelta(t, 2048, utilization.NetworkOutAvg, 1e-9)
	assert.Equal(t, 7, utilization.WindowDays)
}

func TestService_AlarmAnalysis(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clients := &fakeClients{cw: &fakeCloudWatch{
		alarms: []cwtypes.MetricAlarm{
			{
				AlarmName:  aws.String("cpu-a"),
				MetricName: aws.String("CPUUtilization"),
				Threshold:  aws.Float64(80),
				Dimensions: []cwtypes.Dimension{{Name: aws.String("InstanceId"), Value: aws.String("i-1")}},
				AlarmActions: []string{"arn:sns:ops"},
			},
			{
				AlarmName:  aws.String("cpu-b"),
				MetricName: aws.String("CPUUtilization"),
				Threshold:  aws.Float64(82),
				Dimensions: []cwtypes.Dimension{{Name: aws.String("InstanceId"), Value: aws.String("i-1")}},
				AlarmActions: []string{"arn:sns:ops"},
			},
		},
	}}
	service := newServiceWithClients(t, db, clients)

	report, err := service.AlarmAnalysis(context.Background(), uuid.New(), "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalAlarms)
	require.Len(t, report.Clusters, 1)
	assert.Equal(t, "redundant", report.Clusters[0].Classification)
}

func TestService_SnapshotAnalysis(t *testing.T) {
	db := testutil.SetupTestDB(t)
	started := time.Now().AddDate(0, 0, -100)
	fake := &fakeEC2{
		snapshots: []ec2types.Snapshot{
			{SnapshotId: aws.String("snap-1"), VolumeId: aws.String("vol-1"), VolumeSize: aws.Int32(20), StartTime: aws.Time(started)},
		},
		volumes: []ec2types.Volume{
			{VolumeId: aws.String("vol-1"), Size: aws.Int32(20), State: ec2types.VolumeStateInUse},
			{VolumeId: aws.String("vol-naked"), Size: aws.Int32(30), State: ec2types.VolumeStateAvailable},
		},
	}
	service := newServiceWithClients(t, db, singleRegionClients("us-east-1", fake))

	analysis, err := service.SnapshotAnalysis(context.Background(), uuid.New(), "us-east-1")
	require.NoError(t, err)

	assert.Equal(t, 1, analysis.TotalCount)
	types := make([]string, 0, len(analysis.Findings))
	for _, finding := range analysis.Findings {
		types = append(types, finding.Type)
	}
	assert.Contains(t, types, "stale_snapshot")
	assert.Contains(t, types, "unattached_volume")
	assert.Contains(t, types, "volume_without_snapshot")
}

func TestService_ImageAnalysis(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fake := &fakeEC2{
		images: []ec2types.Image{
			{ImageId: aws.String("ami-1"), Public: aws.Bool(true), CreationDate: aws.String("2020-01-01T00:00:00.000Z")},
		},
	}
	service := newServiceWithClients(t, db, singleRegionClients("us-east-1", fake))

	report, err := service.ImageAnalysis(context.Background(), uuid.New(), "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalImages)

	types := make([]string, 0, len(report.Findings))
	for _, finding := range report.Findings {
		types = append(types, finding.Type)
	}
	assert.Contains(t, types, "stale_ami")
	assert.Contains(t, types, "public_ami")
}
