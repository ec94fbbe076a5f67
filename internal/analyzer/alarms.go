package analyzer

import (
	"fmt"
	"sort"
	"strings"
)

// Per-alarm monthly cost, used for savings on removable duplicates.
const alarmCostPerMonth = 0.10

// More alarms than this on a single instance is flagged as excessive.
const maxAlarmsPerInstance = 3

// Alarm is the slice of a metric alarm the analyzer needs.
type Alarm struct {
	Name       string            `json:"name"`
	MetricName string            `json:"metric_name"`
	Namespace  string            `json:"namespace,omitempty"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Threshold  float64           `json:"threshold"`
	Actions    []string          `json:"actions,omitempty"`
	State      string            `json:"state,omitempty"`
}

// DuplicateCluster groups alarms watching the same metric on the same
// dimensions.
type DuplicateCluster struct {
	MetricName string   `json:"metric_name"`
	AlarmNames []string `json:"alarm_names"`

	// exact_duplicate, similar_threshold or redundant.
	Classification string   `json:"classification"`
	Severity       Severity `json:"severity"`

	EstimatedMonthlySavings float64 `json:"estimated_monthly_savings"`
}

// ExcessiveAlarms flags an instance carrying too many alarms.
type ExcessiveAlarms struct {
	InstanceID              string   `json:"instance_id"`
	AlarmNames              []string `json:"alarm_names"`
	EstimatedMonthlySavings float64  `json:"estimated_monthly_savings"`
}

// AlarmReport is the result of duplicate-alarm analysis.
type AlarmReport struct {
	TotalAlarms             int                `json:"total_alarms"`
	Clusters                []DuplicateCluster `json:"clusters"`
	Excessive               []ExcessiveAlarms  `json:"excessive"`
	EstimatedMonthlySavings float64            `json:"estimated_monthly_savings"`
}

// AnalyzeAlarms finds duplicate alarm clusters and over-alarmed instances.
//
// Alarms are grouped by (metric name, sorted dimension pairs). A group larger
// than one is a duplicate cluster, classified exact_duplicate (high) unless
// every threshold lies within 10% of the cluster minimum, which downgrades it
// to similar_threshold (medium); if on top of that every alarm carries the
// identical action set, the cluster is redundant (high) since the extra alarms
// add nothing.
//
// Independently, alarms are grouped by their InstanceId dimension across all
// metrics; an instance with more than three alarms is flagged with savings
// computed only on the excess.
func AnalyzeAlarms(alarms []Alarm) AlarmReport {
	report := AlarmReport{TotalAlarms: len(alarms)}

	groups := make(map[string][]Alarm)
	for _, alarm := range alarms {
		key := alarm.MetricName + "|" + dimensionKey(alarm.Dimensions)
		groups[key] = append(groups[key], alarm)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		report.Clusters = append(report.Clusters, classifyCluster(group))
	}

	byInstance := make(map[string][]Alarm)
	for _, alarm := range alarms {
		if instanceID, ok := alarm.Dimensions["InstanceId"]; ok && instanceID != "" {
			byInstance[instanceID] = append(byInstance[instanceID], alarm)
		}
	}

	instanceIDs := make([]string, 0, len(byInstance))
	for id := range byInstance {
		instanceIDs = append(instanceIDs, id)
	}
	sort.Strings(instanceIDs)

	for _, instanceID := range instanceIDs {
		group := byInstance[instanceID]
		if len(group) <= maxAlarmsPerInstance {
			continue
		}
		excess := len(group) - maxAlarmsPerInstance
		report.Excessive = append(report.Excessive, ExcessiveAlarms{
			InstanceID:              instanceID,
			AlarmNames:              alarmNames(group),
			EstimatedMonthlySavings: float64(excess) * alarmCostPerMonth,
		})
	}

	for _, cluster := range report.Clusters {
		report.EstimatedMonthlySavings += cluster.EstimatedMonthlySavings
	}
	for _, excessive := range report.Excessive {
		report.EstimatedMonthlySavings += excessive.EstimatedMonthlySavings
	}

	return report
}

func classifyCluster(group []Alarm) DuplicateCluster {
	cluster := DuplicateCluster{
		MetricName: group[0].MetricName,
		AlarmNames: alarmNames(group),
		// Removing all but one alarm in the cluster frees the rest.
		EstimatedMonthlySavings: float64(len(group)-1) * alarmCostPerMonth,
	}

	cluster.Classification = "exact_duplicate"
	cluster.Severity = SeverityHigh

	if thresholdsSimilar(group) {
		cluster.Classification = "similar_threshold"
		cluster.Severity = SeverityMedium

		if identicalActions(group) {
			cluster.Classification = "redundant"
			cluster.Severity = SeverityHigh
		}
	}

	return cluster
}

// thresholdsSimilar reports whether every threshold in the group lies within
// 10% of the group minimum.
func thresholdsSimilar(group []Alarm) bool {
	min := group[0].Threshold
	for _, alarm := range group[1:] {
		if alarm.Threshold < min {
			min = alarm.Threshold
		}
	}

	for _, alarm := range group {
		if alarm.Threshold-min > min*0.10 {
			return false
		}
	}
	return true
}

func identicalActions(group []Alarm) bool {
	reference := actionKey(group[0].Actions)
	for _, alarm := range group[1:] {
		if actionKey(alarm.Actions) != reference {
			return false
		}
	}
	return true
}

func actionKey(actions []string) string {
	sorted := make([]string, len(actions))
	copy(sorted, actions)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func dimensionKey(dimensions map[string]string) string {
	pairs := make([]string, 0, len(dimensions))
	for name, value := range dimensions {
		pairs = append(pairs, fmt.Sprintf("%s=%s", name, value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func alarmNames(group []Alarm) []string {
	names := make([]string, len(group))
	for i, alarm := range group {
		names[i] = alarm.Name
	}
	return names
}
