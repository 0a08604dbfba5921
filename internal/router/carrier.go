package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// carrierHealthPrefix mirrors the original carrier_health:<domain> key.
const carrierHealthPrefix = "carrier_health:"

// CarrierHealth tracks per-(domain, carrier) success/failure so the GPS can
// pivot away from a carrier with a high failure rate on a given domain,
// grounded on original_source/scrapegoat/app/pipeline/stats.py.
type CarrierHealth struct {
	client *redis.Client
}

// NewCarrierHealth constructs a CarrierHealth tracker.
func NewCarrierHealth(client *redis.Client) *CarrierHealth {
	return &CarrierHealth{client: client}
}

func domainKey(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return carrierHealthPrefix + "unknown"
	}
	if !strings.Contains(d, ".") {
		d += ".com"
	}
	return carrierHealthPrefix + d
}

func normCarrier(carrier string) string {
	c := strings.ToLower(strings.TrimSpace(carrier))
	c = strings.ReplaceAll(c, " ", "")
	c = strings.ReplaceAll(c, "_", "")
	if c == "" {
		return "default"
	}
	return c
}

// RecordResult updates the (domain, carrier) success/failure counter that
// PreferredCarrier reads. The worker does not call it.
func (c *CarrierHealth) RecordResult(ctx context.Context, domain, carrier string, success bool) error {
	key := domainKey(domain)
	field := normCarrier(carrier)
	raw, err := c.client.HGet(ctx, key, field).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("carrier health read %s/%s: %w", key, field, err)
	}
	s, f := parseCounts(raw)
	if success {
		s++
	} else {
		f++
	}
	return c.client.HSet(ctx, key, field, fmt.Sprintf("%d,%d", s, f)).Err()
}

func parseCounts(raw string) (int64, int64) {
	if raw == "" {
		return 0, 0
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	s, _ := strconv.ParseInt(parts[0], 10, 64)
	f, _ := strconv.ParseInt(parts[1], 10, 64)
	return s, f
}

// PreferredCarrier returns the carrier with the lowest failure rate for a
// domain, excluding any carriers in exclude (used to force a pivot).
// Returns "" when there is no data, so the caller does not set a carrier.
func (c *CarrierHealth) PreferredCarrier(ctx context.Context, domain string, exclude map[string]struct{}) (string, error) {
	key := domainKey(domain)
	all, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("carrier health read %s: %w", key, err)
	}
	best := ""
	bestRate := 2.0
	for carrier, raw := range all {
		norm := normCarrier(carrier)
		if _, skip := exclude[norm]; skip {
			continue
		}
		s, f := parseCounts(raw)
		total := s + f
		failRate := 0.5
		if total >= 1 {
			failRate = float64(f) / float64(total)
		}
		if failRate < bestRate {
			bestRate = failRate
			best = carrier
		}
	}
	return best, nil
}
