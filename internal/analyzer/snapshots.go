package analyzer

import (
	"fmt"
	"time"
)

// Storage pricing used for rough savings estimates, USD per GB-month.
const snapshotCostPerGBMonth = 0.05

// Snapshot is the slice of a snapshot record the analyzer needs.
type Snapshot struct {
	ID        string
	VolumeID  string
	SizeGB    int32
	Encrypted bool
	StartTime *time.Time
}

// Image is the slice of an AMI record the analyzer needs.
type Image struct {
	ID           string
	Name         string
	Public       bool
	CreationDate *time.Time
}

// VolumeRef identifies a volume for orphan detection.
type VolumeRef struct {
	ID     string
	SizeGB int32
	State  string
}

// SnapshotAnalysis summarizes a snapshot population.
type SnapshotAnalysis struct {
	TotalCount           int               `json:"total_count"`
	TotalSizeGB          int64             `json:"total_size_gb"`
	EncryptedCount       int               `json:"encrypted_count"`
	AgeBuckets           map[AgeBucket]int `json:"age_buckets"`
	SnapshotsPerVolume   map[string]int    `json:"snapshots_per_volume"`
	EstimatedMonthlyCost float64           `json:"estimated_monthly_cost"`

	Findings []Recommendation `json:"findings"`
}

// Snapshots at or above this referenced-volume size get an individual finding.
const bigVolumeThresholdGB = 100

// AnalyzeSnapshots computes totals, age distribution and per-volume counts,
// and flags snapshots of large volumes and stale snapshots.
func AnalyzeSnapshots(snapshots []Snapshot, now time.Time) SnapshotAnalysis {
	analysis := SnapshotAnalysis{
		AgeBuckets:         make(map[AgeBucket]int),
		SnapshotsPerVolume: make(map[string]int),
	}

	for _, snapshot := range snapshots {
		analysis.TotalCount++
		analysis.TotalSizeGB += int64(snapshot.SizeGB)
		if snapshot.Encrypted {
			analysis.EncryptedCount++
		}
		if snapshot.VolumeID != "" {
			analysis.SnapshotsPerVolume[snapshot.VolumeID]++
		}

		if snapshot.StartTime != nil {
			bucket := BucketAge(*snapshot.StartTime, now)
			analysis.AgeBuckets[bucket]++

			if bucket == AgeOver90Days {
				analysis.Findings = append(analysis.Findings, Recommendation{
					Type:             "stale_snapshot",
					Severity:         SeverityMedium,
					ResourceID:       snapshot.ID,
					Description:      "snapshot is more than 90 days old, verify it is still needed",
					EstimatedSavings: float64(snapshot.SizeGB) * snapshotCostPerGBMonth,
				})
			}
		}

		if snapshot.SizeGB >= bigVolumeThresholdGB {
			analysis.Findings = append(analysis.Findings, Recommendation{
				Type:             "big_volume_snapshot",
				Severity:         SeverityLow,
				ResourceID:       snapshot.ID,
				Description:      fmt.Sprintf("snapshot references a %d GB volume, storage cost adds up per copy", snapshot.SizeGB),
				EstimatedSavings: float64(snapshot.SizeGB) * snapshotCostPerGBMonth,
			})
		}
	}

	analysis.EstimatedMonthlyCost = float64(analysis.TotalSizeGB) * snapshotCostPerGBMonth

	return analysis
}

// OrphanedVolumes returns findings for volumes that have no snapshot at all,
// plus available (unattached) volumes. Snapshot references are weak, so a
// snapshot pointing at a deleted volume is simply ignored here.
func OrphanedVolumes(volumes []VolumeRef, snapshots []Snapshot) []Recommendation {
	snapshotted := make(map[string]bool, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot.VolumeID != "" {
			snapshotted[snapshot.VolumeID] = true
		}
	}

	var findings []Recommendation
	for _, volume := range volumes {
		if volume.State == "available" {
			findings = append(findings, Recommendation{
				Type:             "unattached_volume",
				Severity:         SeverityMedium,
				ResourceID:       volume.ID,
				Description:      fmt.Sprintf("volume (%d GB) is not attached to any instance", volume.SizeGB),
				EstimatedSavings: float64(volume.SizeGB) * 0.08,
			})
		}
		if !snapshotted[volume.ID] {
			findings = append(findings, Recommendation{
				Type:        "volume_without_snapshot",
				Severity:    SeverityLow,
				ResourceID:  volume.ID,
				Description: "volume has no snapshot, data is unprotected against deletion",
			})
		}
	}

	return findings
}

// AnalyzeImages summarizes AMI age and exposure.
func AnalyzeImages(images []Image, now time.Time) (map[AgeBucket]int, []Recommendation) {
	buckets := make(map[AgeBucket]int)
	var findings []Recommendation

	for _, image := range images {
		if image.CreationDate != nil {
			bucket := BucketAge(*image.CreationDate, now)
			buckets[bucket]++

			if bucket == AgeOver90Days {
				findings = append(findings, Recommendation{
					Type:        "stale_ami",
					Severity:    SeverityLow,
					ResourceID:  image.ID,
					Description: "image is more than 90 days old and may reference outdated software",
				})
			}
		}
		if image.Public {
			findings = append(findings, Recommendation{
				Type:        "public_ami",
				Severity:    SeverityHigh,
				ResourceID:  image.ID,
				Description: "image is publicly launchable, verify this is intentional",
			})
		}
	}

	return buckets, findings
}
