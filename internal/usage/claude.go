// Package usage turns provider usage payloads into normalized quota values.
//
// Both providers return loosely specified JSON, so the parsers work on the
// generic decoded form and look values up through ordered alias tables:
// the first alias that yields a value wins.
package usage

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/j-veylop/codequota/internal/models"
)

// minPlausibleEpoch rejects small numbers that are relative seconds rather
// than absolute timestamps.
const minPlausibleEpoch = 1_000_000_000

// field pairs a JSON key with the function that reads its value.
type field[T any] struct {
	extract func(any) (T, bool)
	key     string
}

// first returns the value of the first field in fields that is present in
// obj and accepted by its extractor.
func first[T any](obj map[string]any, fields []field[T]) (T, bool) {
	for _, f := range fields {
		raw, ok := obj[f.key]
		if !ok {
			continue
		}
		if v, ok := f.extract(raw); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// firstPresent extracts the first field in fields whose key is present in
// obj. Unlike first, a present value the extractor rejects ends the search.
func firstPresent[T any](obj map[string]any, fields []field[T]) (T, bool) {
	for _, f := range fields {
		if raw, ok := obj[f.key]; ok && raw != nil {
			return f.extract(raw)
		}
	}
	var zero T
	return zero, false
}

// Bucket key aliases, in precedence order.
var (
	fiveHourKeys = []string{"five_hour", "fiveHour", "5_hour", "short_term", "shortTerm"}

	weeklyAllKeys = []string{
		"seven_day", "seven_day_all", "daily", "sevenDayAll", "7_day_all",
		"long_term", "longTerm", "weekly",
	}

	weeklyModelKeys = []string{"seven_day_sonnet", "daily_sonnet", "sevenDaySonnet", "7_day_sonnet", "sonnet"}
)

// Value and reset aliases inside a nested bucket object, in precedence order.
var (
	valueFields = []field[float64]{
		{key: "utilization", extract: number},
		{key: "usage", extract: number},
		{key: "percent", extract: hundredths},
		{key: "value", extract: number},
	}
	resetFields = []field[time.Time]{
		{key: "reset_at", extract: timestamp},
		{key: "resetAt", extract: timestamp},
		{key: "resets_at", extract: timestamp},
		{key: "reset", extract: timestamp},
		{key: "expires_at", extract: timestamp},
	}
)

// ParseClaude decodes a Claude usage response.
//
// Each of the three windows is resolved independently through its alias
// list; a window that does not resolve defaults to 0% with no reset time.
// When none of them resolve, every object-valued top-level key that parses
// as a bucket is assigned to the windows in ascending key order.
func ParseClaude(data []byte) (models.ClaudeUsage, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return models.ClaudeUsage{}, err
	}

	fiveHour, okFive := resolveBucket(obj, fiveHourKeys)
	weeklyAll, okAll := resolveBucket(obj, weeklyAllKeys)
	weeklyModel, okModel := resolveBucket(obj, weeklyModelKeys)

	if okFive || okAll || okModel {
		return models.ClaudeUsage{
			FiveHour:    fiveHour,
			WeeklyAll:   weeklyAll,
			WeeklyModel: weeklyModel,
		}, nil
	}

	// Positional assignment: a new or renamed window in the response can
	// shift the others into the wrong slot. Only used when no known alias
	// matched at all.
	keys := lo.Keys(obj)
	slices.Sort(keys)

	var buckets []models.UsageBucket
	for _, key := range keys {
		nested, ok := obj[key].(map[string]any)
		if !ok {
			continue
		}
		if b, ok := bucketFromObject(nested); ok {
			buckets = append(buckets, b)
		}
	}

	if len(buckets) == 0 {
		return models.ClaudeUsage{}, &models.ParseError{Kind: models.UnrecognizedFormat, Keys: keys}
	}

	slots := make([]models.UsageBucket, 3)
	copy(slots, buckets)
	return models.ClaudeUsage{
		FiveHour:    slots[0],
		WeeklyAll:   slots[1],
		WeeklyModel: slots[2],
	}, nil
}

// resolveBucket returns the bucket of the first alias that resolves.
func resolveBucket(obj map[string]any, aliases []string) (models.UsageBucket, bool) {
	for _, key := range aliases {
		if b, ok := bucketAt(obj, key); ok {
			return b, true
		}
	}
	return models.UsageBucket{}, false
}

// bucketAt reads a bucket stored either as obj[key] = {...} or as the flat
// pair <key>_utilization / <key>_reset_at.
func bucketAt(obj map[string]any, key string) (models.UsageBucket, bool) {
	if nested, ok := obj[key].(map[string]any); ok {
		return bucketFromObject(nested)
	}

	util, ok := number(obj[key+"_utilization"])
	if !ok {
		return models.UsageBucket{}, false
	}
	b := models.UsageBucket{Percent: Clamp(util)}
	if reset, ok := timestamp(obj[key+"_reset_at"]); ok {
		b.ResetAt = &reset
	}
	return b, true
}

func bucketFromObject(obj map[string]any) (models.UsageBucket, bool) {
	util, ok := first(obj, valueFields)
	if !ok {
		return models.UsageBucket{}, false
	}
	b := models.UsageBucket{Percent: Clamp(util)}
	if reset, ok := first(obj, resetFields); ok {
		b.ResetAt = &reset
	}
	return b, true
}

// Clamp limits v to [0, 100].
func Clamp(v float64) float64 {
	return min(max(v, 0), 100)
}

func number(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// hundredths reads a value reported on a 0-10000 scale.
func hundredths(v any) (float64, bool) {
	f, ok := number(v)
	if !ok {
		return 0, false
	}
	return f / 100, true
}

// timestamp accepts RFC 3339 strings with or without fractional seconds and
// epoch seconds above minPlausibleEpoch.
func timestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	case float64:
		if val > minPlausibleEpoch {
			sec := int64(val)
			nsec := int64((val - float64(sec)) * float64(time.Second))
			return time.Unix(sec, nsec).UTC(), true
		}
	}
	return time.Time{}, false
}

func decodeObject(data []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &models.ParseError{Kind: models.InvalidJSON, Err: err}
	}
	if obj == nil {
		return nil, &models.ParseError{Kind: models.InvalidJSON}
	}
	return obj, nil
}
