package analyzer

import (
	"fmt"
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Recommendation is a derived optimization finding. Never persisted as a
// source of truth; always recomputed from current data.
type Recommendation struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	ResourceID  string   `json:"resource_id"`
	Description string   `json:"description"`

	// Estimated monthly savings in USD, zero when not quantifiable.
	EstimatedSavings float64 `json:"estimated_savings"`
}

// Instance families old enough that newer generations are strictly cheaper
// for the same workload.
var deprecatedFamilies = []string{"t2.", "m4.", "c4.", "r4."}

// CPU utilization thresholds, in percent.
const (
	cpuSeverelyUnderutilized = 10
	cpuUnderutilized         = 25
	cpuOverutilized          = 80
)

// InstanceRecommendations evaluates one running instance against its average
// CPU utilization. The outdated-generation check is independent of
// utilization and fires regardless of the CPU axis.
func InstanceRecommendations(instanceID, instanceType string, cpuAverage float64) []Recommendation {
	var recs []Recommendation

	switch {
	case cpuAverage < cpuSeverelyUnderutilized:
		recs = append(recs, Recommendation{
			Type:        "underutilized",
			Severity:    SeverityHigh,
			ResourceID:  instanceID,
			Description: fmt.Sprintf("average CPU %.1f%% is below %d%%, consider stopping or downsizing", cpuAverage, cpuSeverelyUnderutilized),
		})
	case cpuAverage < cpuUnderutilized:
		recs = append(recs, Recommendation{
			Type:        "underutilized",
			Severity:    SeverityMedium,
			ResourceID:  instanceID,
			Description: fmt.Sprintf("average CPU %.1f%% is below %d%%, consider a smaller instance type", cpuAverage, cpuUnderutilized),
		})
	case cpuAverage > cpuOverutilized:
		recs = append(recs, Recommendation{
			Type:        "overutilized",
			Severity:    SeverityMedium,
			ResourceID:  instanceID,
			Description: fmt.Sprintf("average CPU %.1f%% is above %d%%, consider a larger instance type", cpuAverage, cpuOverutilized),
		})
	}

	for _, family := range deprecatedFamilies {
		if strings.HasPrefix(instanceType, family) {
			recs = append(recs, Recommendation{
				Type:        "outdated_generation",
				Severity:    SeverityMedium,
				ResourceID:  instanceID,
				Description: fmt.Sprintf("instance type %s is a previous generation, newer generations offer better price/performance", instanceType),
			})
			break
		}
	}

	return recs
}

// StoppedInstanceFinding flags an instance that has been stopped for at least
// 30 whole days. Severity rises with the age bucket. Returns nil for
// recently-stopped instances.
func StoppedInstanceFinding(instanceID string, stoppedSince, now time.Time) *Recommendation {
	bucket := BucketAge(stoppedSince, now)

	var severity Severity
	switch bucket {
	case AgeOver90Days:
		severity = SeverityHigh
	case AgeOver60Days:
		severity = SeverityMedium
	case AgeOver30Days:
		severity = SeverityLow
	default:
		return nil
	}

	days := int(now.Sub(stoppedSince).Hours() / 24)
	return &Recommendation{
		Type:        "long_stopped",
		Severity:    severity,
		ResourceID:  instanceID,
		Description: fmt.Sprintf("instance has been stopped for %d days, attached volumes still accrue cost", days),
	}
}
