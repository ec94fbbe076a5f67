package inventory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/magicdevops/cloudleakage/internal/awsx"
)

// High-traffic regions are scheduled before the rest so the first results
// arrive sooner. Ordering affects latency only, never correctness.
var priorityRegions = []string{"us-east-1", "us-west-2", "eu-west-1", "ap-southeast-1"}

// fallbackRegions is used when region discovery itself fails. Partial data
// beats none.
var fallbackRegions = []string{"us-east-1", "us-west-2", "eu-west-1", "ap-southeast-1", "ap-northeast-1"}

const maxRegionWorkers = 5

// Collector fans a fetch out across regions under a bounded worker pool.
// Per-region failures are isolated: a fatal error or timeout in one region
// contributes an empty list and a warning, never cancelling sibling fetches.
// Merged output is in completion order; callers must not depend on ordering.
type Collector struct {
	fetcher       *Fetcher
	logger        *slog.Logger
	maxWorkers    int
	regionTimeout time.Duration
}

func NewCollector(fetcher *Fetcher, logger *slog.Logger, maxWorkers int, regionTimeout time.Duration) *Collector {
	if maxWorkers <= 0 {
		maxWorkers = maxRegionWorkers
	}
	return &Collector{
		fetcher:       fetcher,
		logger:        logger,
		maxWorkers:    maxWorkers,
		regionTimeout: regionTimeout,
	}
}

// Collect fetches kind from every region the account exposes, or from the one
// named region when the selector is not ScopeAll.
func (c *Collector) Collect(ctx context.Context, clients awsx.ClientFactory, kind Kind, region string) []Resource {
	var regions []string
	if region != "" && region != ScopeAll {
		regions = []string{region}
	} else {
		regions = c.discoverRegions(ctx, clients)
	}

	var (
		merged  []Resource
		failed  int
		mu      sync.Mutex
		wg      sync.WaitGroup
		workers = c.maxWorkers
	)
	if len(regions) < workers {
		workers = len(regions)
	}
	sem := make(chan struct{}, workers)

	for _, r := range regions {
		wg.Add(1)
		sem <- struct{}{}

		go func(region string) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, c.regionTimeout)
			defer cancel()

			records, err := c.fetcher.Fetch(fetchCtx, clients, region, kind)
			if err != nil {
				c.logger.Warn("region fetch failed",
					"region", region,
					"kind", kind,
					"error", err,
				)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			merged = append(merged, records...)
			mu.Unlock()
		}(r)
	}

	wg.Wait()

	c.logger.Info("collection complete",
		"kind", kind,
		"regions", len(regions),
		"failed_regions", failed,
		"records", len(merged),
	)

	return merged
}

// discoverRegions enumerates enabled regions through the home region, falling
// back to a fixed well-known list when discovery is not permitted or fails.
func (c *Collector) discoverRegions(ctx context.Context, clients awsx.ClientFactory) []string {
	client := clients.EC2(awsx.DefaultRegion)

	out, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		c.logger.Warn("region discovery failed, using fallback list", "error", err)
		return fallbackRegions
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if name := aws.ToString(r.RegionName); name != "" {
			regions = append(regions, name)
		}
	}
	if len(regions) == 0 {
		return fallbackRegions
	}

	return orderByPriority(regions)
}

// orderByPriority moves the high-traffic regions to the front, keeping the
// discovered order for the remainder.
func orderByPriority(regions []string) []string {
	present := make(map[string]bool, len(regions))
	for _, r := range regions {
		present[r] = true
	}

	ordered := make([]string, 0, len(regions))
	prioritized := make(map[string]bool, len(priorityRegions))
	for _, p := range priorityRegions {
		if present[p] {
			ordered = append(ordered, p)
			prioritized[p] = true
		}
	}
	for _, r := range regions {
		if !prioritized[r] {
			ordered = append(ordered, r)
		}
	}

	return ordered
}
