package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
)

// Pending operational counters live in one Redis hash. Fields are
// "<yyyy-mm-dd>:<metric>" so a flush that runs after midnight still lands
// increments on the day they happened.
const quotaCountersKey = "quota:counters:daily"

const (
	metricAuthorized = "authorized"
	metricDenied     = "denied"
	metricCharged    = "charged"
	metricAlerts     = "alerts"
)

func field(metric string, at time.Time) string {
	return at.UTC().Format("2006-01-02") + ":" + metric
}

// AddAuthorized increments the pending authorized counter and the charged
// credit total for the current day in Redis
func AddAuthorized(creditsCharged int64) error {
	ctx := context.Background()
	now := time.Now()
	rdb := cache.GetClient()
	if err := rdb.HIncrBy(ctx, quotaCountersKey, field(metricAuthorized, now), 1).Err(); err != nil {
		return err
	}
	return rdb.HIncrBy(ctx, quotaCountersKey, field(metricCharged, now), creditsCharged).Err()
}

// AddDenied increments the pending denied counter for the current day in Redis
func AddDenied() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, quotaCountersKey, field(metricDenied, time.Now()), 1).Err()
}

// AddAlert increments the pending persistence-alert counter for the current day in Redis
func AddAlert() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, quotaCountersKey, field(metricAlerts, time.Now()), 1).Err()
}

// FlushAll flushes the pending counters to the daily_stats table
func FlushAll() error {
	return flushHashToDailyStats(quotaCountersKey)
}

// flushHashToDailyStats drains the Redis hash atomically and applies batched increments
// to the daily_stats table. Uses RENAME to a temporary key for atomic drain without
// losing in-flight increments.
func flushHashToDailyStats(redisKey string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		// Some Redis libs return redis.Nil; treat as empty
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	type dayIncrements struct {
		authorized int64
		denied     int64
		charged    int64
		alerts     int64
	}
	byDay := make(map[string]*dayIncrements)
	for k, v := range data {
		date, metric, ok := strings.Cut(k, ":")
		if !ok {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		day, ok := byDay[date]
		if !ok {
			day = &dayIncrements{}
			byDay[date] = day
		}
		switch metric {
		case metricAuthorized:
			day.authorized += inc
		case metricDenied:
			day.denied += inc
		case metricCharged:
			day.charged += inc
		case metricAlerts:
			day.alerts += inc
		}
	}
	if len(byDay) == 0 {
		return nil
	}

	// Sort dates for stable SQL
	dates := make([]string, 0, len(byDay))
	for date := range byDay {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	db := database.GetDB()
	for _, date := range dates {
		day := byDay[date]
		sql := "INSERT INTO daily_stats (stat_date, authorized_count, denied_count, credits_charged, alert_count, updated_at)" +
			" VALUES (?, ?, ?, ?, ?, NOW())" +
			" ON DUPLICATE KEY UPDATE" +
			" authorized_count = authorized_count + VALUES(authorized_count)," +
			" denied_count = denied_count + VALUES(denied_count)," +
			" credits_charged = credits_charged + VALUES(credits_charged)," +
			" alert_count = alert_count + VALUES(alert_count)," +
			" updated_at = NOW()"
		if err := db.Exec(sql, date, day.authorized, day.denied, day.charged, day.alerts).Error; err != nil {
			return err
		}
	}
	return nil
}

// Recorder adapts the Redis counters to the quota gate's metrics hook.
// Increments are best-effort; errors are swallowed so a Redis outage never
// rejects a request.
type Recorder struct{}

func (Recorder) RecordAuthorized(creditsCharged int64) { _ = AddAuthorized(creditsCharged) }
func (Recorder) RecordDenied(string)                   { _ = AddDenied() }
func (Recorder) RecordAlert()                          { _ = AddAlert() }
