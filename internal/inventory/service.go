package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/magicdevops/cloudleakage/internal/analyzer"
	"github.com/magicdevops/cloudleakage/internal/awsx"
	"github.com/magicdevops/cloudleakage/internal/database/models"
	"github.com/magicdevops/cloudleakage/pkg/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service orchestrates inventory collection: cache lookup, session
// derivation, region fan-out, write-through persistence and derived analysis.
type Service struct {
	db        *gorm.DB
	cache     *Cache
	collector *Collector
	logger    *slog.Logger

	// Session derivation, injected so tests can substitute fake clients.
	derive func(ctx context.Context, accountID uuid.UUID) (awsx.ClientFactory, error)
	now    func() time.Time
}

func NewService(db *gorm.DB, factory *awsx.SessionFactory, cfg config.CollectorConfig, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		cache:     NewCache(cfg.CacheTTL()),
		collector: NewCollector(NewFetcher(logger), logger, cfg.MaxConcurrentRegions, cfg.RegionTimeout()),
		logger:    logger,
		derive: func(ctx context.Context, accountID uuid.UUID) (awsx.ClientFactory, error) {
			session, err := factory.Derive(ctx, accountID)
			if err != nil {
				return nil, err
			}
			return session, nil
		},
		now: time.Now,
	}
}

// ListResources returns the account's inventory of one kind, cache-first.
// An empty region selects every region the account exposes.
func (s *Service) ListResources(ctx context.Context, accountID uuid.UUID, kind Kind, region string) ([]Resource, error) {
	scope := region
	if scope == "" {
		scope = ScopeAll
	}
	key := CacheKey{AccountID: accountID, Kind: kind, Scope: scope}

	if records, age, ok := s.cache.Get(key); ok {
		s.logger.Debug("cache hit", "account_id", accountID, "kind", kind, "scope", scope, "age", age)
		return records, nil
	}

	clients, err := s.derive(ctx, accountID)
	if err != nil {
		return nil, err
	}

	records := s.collector.Collect(ctx, clients, kind, scope)
	s.cache.Put(key, records)

	return records, nil
}

// Sync bypasses the cache, collects every region fresh, writes the result
// through to the database and stamps the account's last-sync time. Returns
// the number of records collected.
func (s *Service) Sync(ctx context.Context, accountID uuid.UUID, kind Kind) (int, error) {
	clients, err := s.derive(ctx, accountID)
	if err != nil {
		return 0, err
	}

	records := s.collector.Collect(ctx, clients, kind, ScopeAll)
	s.cache.Put(CacheKey{AccountID: accountID, Kind: kind, Scope: ScopeAll}, records)

	if err := s.persist(ctx, accountID, kind, records); err != nil {
		return 0, fmt.Errorf("persisting %s inventory: %w", kind, err)
	}

	// A sync against a deleted account is a no-op here, not an error.
	now := s.now()
	s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("last_sync", now)

	s.logger.Info("sync complete", "account_id", accountID, "kind", kind, "records", len(records))

	return len(records), nil
}

// InvalidateAccount drops every cached entry for the account. Called when the
// account's credentials or status change.
func (s *Service) InvalidateAccount(accountID uuid.UUID) {
	s.cache.InvalidateAccount(accountID)
}

// Recommendations composes utilization samples and instance metadata into
// optimization findings, always from a fresh listing. Utilization fetch
// failures degrade to metadata-only findings for that instance.
func (s *Service) Recommendations(ctx context.Context, accountID uuid.UUID) ([]analyzer.Recommendation, error) {
	instances, err := s.ListResources(ctx, accountID, KindInstance, "")
	if err != nil {
		return nil, err
	}

	clients, err := s.derive(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	recommendations := []analyzer.Recommendation{}

	for _, instance := range instances {
		switch instance.State {
		case "running":
			utilization, err := FetchUtilization(ctx, clients.CloudWatch(instance.Region), instance.ID, now)
			if err != nil {
				s.logger.Warn("utilization fetch failed, skipping CPU analysis",
					"instance_id", instance.ID,
					"region", instance.Region,
					"error", err,
				)
				continue
			}
			recommendations = append(recommendations,
				analyzer.InstanceRecommendations(instance.ID, instance.InstanceType, utilization.CPUAverage)...)
		case "stopped":
			if instance.LaunchTime != nil {
				if finding := analyzer.StoppedInstanceFinding(instance.ID, *instance.LaunchTime, now); finding != nil {
					recommendations = append(recommendations, *finding)
				}
			}
		}
	}

	return recommendations, nil
}

// Utilization fetches the trailing usage summary for one instance.
func (s *Service) Utilization(ctx context.Context, accountID uuid.UUID, instanceID, region string) (Utilization, error) {
	clients, err := s.derive(ctx, accountID)
	if err != nil {
		return Utilization{}, err
	}
	if region == "" {
		region = awsx.DefaultRegion
	}

	return FetchUtilization(ctx, clients.CloudWatch(region), instanceID, s.now())
}

// AlarmAnalysis lists the region's metric alarms and runs duplicate
// detection over them.
func (s *Service) AlarmAnalysis(ctx context.Context, accountID uuid.UUID, region string) (analyzer.AlarmReport, error) {
	clients, err := s.derive(ctx, accountID)
	if err != nil {
		return analyzer.AlarmReport{}, err
	}
	if region == "" {
		region = awsx.DefaultRegion
	}

	alarms, err := FetchAlarms(ctx, clients.CloudWatch(region))
	if err != nil {
		return analyzer.AlarmReport{}, err
	}

	return analyzer.AnalyzeAlarms(alarms), nil
}

// SnapshotAnalysis summarizes the account's snapshots and flags unprotected
// or unattached volumes alongside.
func (s *Service) SnapshotAnalysis(ctx context.Context, accountID uuid.UUID, region string) (analyzer.SnapshotAnalysis, error) {
	snapshots, err := s.ListResources(ctx, accountID, KindSnapshot, region)
	if err != nil {
		return analyzer.SnapshotAnalysis{}, err
	}
	volumes, err := s.ListResources(ctx, accountID, KindVolume, region)
	if err != nil {
		return analyzer.SnapshotAnalysis{}, err
	}

	snapshotInputs := make([]analyzer.Snapshot, len(snapshots))
	for i, snapshot := range snapshots {
		snapshotInputs[i] = analyzer.Snapshot{
			ID:        snapshot.ID,
			VolumeID:  snapshot.VolumeID,
			SizeGB:    snapshot.VolumeSize,
			Encrypted: snapshot.Encrypted,
			StartTime: snapshot.StartTime,
		}
	}
	volumeInputs := make([]analyzer.VolumeRef, len(volumes))
	for i, volume := range volumes {
		volumeInputs[i] = analyzer.VolumeRef{ID: volume.ID, SizeGB: volume.VolumeSize, State: volume.State}
	}

	analysis := analyzer.AnalyzeSnapshots(snapshotInputs, s.now())
	analysis.Findings = append(analysis.Findings, analyzer.OrphanedVolumes(volumeInputs, snapshotInputs)...)

	return analysis, nil
}

// ImageReport summarizes AMI age distribution and exposure findings.
type ImageReport struct {
	TotalImages int                        `json:"total_images"`
	AgeBuckets  map[analyzer.AgeBucket]int `json:"age_buckets"`
	Findings    []analyzer.Recommendation  `json:"findings"`
}

// ImageAnalysis summarizes the account's AMIs.
func (s *Service) ImageAnalysis(ctx context.Context, accountID uuid.UUID, region string) (ImageReport, error) {
	images, err := s.ListResources(ctx, accountID, KindAMI, region)
	if err != nil {
		return ImageReport{}, err
	}

	inputs := make([]analyzer.Image, len(images))
	for i, image := range images {
		inputs[i] = analyzer.Image{
			ID:           image.ID,
			Name:         image.Name,
			Public:       image.Public,
			CreationDate: image.CreationDate,
		}
	}

	buckets, findings := analyzer.AnalyzeImages(inputs, s.now())

	return ImageReport{TotalImages: len(images), AgeBuckets: buckets, Findings: findings}, nil
}

func (s *Service) persist(ctx context.Context, accountID uuid.UUID, kind Kind, records []Resource) error {
	if len(records) == 0 {
		return nil
	}

	db := s.db.WithContext(ctx)
	now := s.now()

	switch kind {
	case KindInstance:
		rows := make([]models.Instance, len(records))
		for i, record := range records {
			rows[i] = models.Instance{
				AccountID:        accountID,
				InstanceID:       record.ID,
				Region:           record.Region,
				InstanceType:     record.InstanceType,
				State:            record.State,
				AvailabilityZone: record.AvailabilityZone,
				Platform:         record.Platform,
				VpcID:            record.VpcID,
				PrivateIP:        record.PrivateIP,
				PublicIP:         record.PublicIP,
				Tags:             marshalTags(record.Tags),
				RawData:          marshalRaw(record),
				LastUpdated:      now,
			}
			if record.LaunchTime != nil {
				rows[i].LaunchTime = *record.LaunchTime
			}
		}
		return db.Clauses(upsertOn("account_id", "instance_id", "region")).Create(&rows).Error

	case KindSnapshot:
		rows := make([]models.Snapshot, len(records))
		for i, record := range records {
			rows[i] = models.Snapshot{
				AccountID:  accountID,
				SnapshotID: record.ID,
				Region:     record.Region,
				VolumeID:   record.VolumeID,
				State:      record.State,
				VolumeSize: record.VolumeSize,
				Encrypted:  record.Encrypted,
				Tags:       marshalTags(record.Tags),
			}
			if record.StartTime != nil {
				rows[i].StartTime = *record.StartTime
			}
		}
		return db.Clauses(upsertOn("account_id", "snapshot_id", "region")).Create(&rows).Error

	case KindAMI:
		rows := make([]models.Image, len(records))
		for i, record := range records {
			rows[i] = models.Image{
				AccountID: accountID,
				ImageID:   record.ID,
				Region:    record.Region,
				Name:      record.Name,
				State:     record.State,
				OwnerID:   record.OwnerID,
				Public:    record.Public,
				Platform:  record.Platform,
				Tags:      marshalTags(record.Tags),
			}
			if record.CreationDate != nil {
				rows[i].CreationDate = *record.CreationDate
			}
		}
		return db.Clauses(upsertOn("account_id", "image_id", "region")).Create(&rows).Error

	case KindVolume:
		rows := make([]models.Volume, len(records))
		for i, record := range records {
			rows[i] = models.Volume{
				AccountID:  accountID,
				VolumeID:   record.ID,
				Region:     record.Region,
				Size:       record.VolumeSize,
				State:      record.State,
				VolumeType: record.VolumeType,
				Encrypted:  record.Encrypted,
				Tags:       marshalTags(record.Tags),
			}
			if record.StartTime != nil {
				rows[i].CreateTime = *record.StartTime
			}
		}
		return db.Clauses(upsertOn("account_id", "volume_id", "region")).Create(&rows).Error

	default:
		return fmt.Errorf("unknown resource kind %q", kind)
	}
}

func upsertOn(columns ...string) clause.OnConflict {
	cols := make([]clause.Column, len(columns))
	for i, name := range columns {
		cols[i] = clause.Column{Name: name}
	}
	return clause.OnConflict{Columns: cols, UpdateAll: true}
}

func marshalTags(tags map[string]string) string {
	if len(tags) == 0 {
		return "{}"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func marshalRaw(record Resource) string {
	data, err := json.Marshal(record)
	if err != nil {
		return "{}"
	}
	return string(data)
}
