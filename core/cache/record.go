// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cache

import (
	"encoding/json"
	"time"

	"github.com/juju/errors"
)

const (
	recordAttrRequestID      = "requestId"
	recordAttrCacheTime      = "cacheTime"
	recordAttrProcessedCount = "processedCount"
	recordAttrProcessedTime  = "processedTime"
	recordAttrAttributes     = "attributes"
)

// Record is an on-demand marker: bookkeeping for a resource that was
// refreshed out of band. CacheTime is the logical clock compared against
// a scheduled pass's start time to decide precedence. ProcessedCount
// counts the scheduled passes that have observed the record since it was
// written; a record that has been processed at least once and whose
// CacheTime predates the current pass start is superseded and evicted.
type Record struct {
	RequestID      string
	CacheTime      time.Time
	ProcessedCount int
	ProcessedTime  time.Time
	Attributes     Attributes
}

// Superseded reports whether the record's data has been folded into the
// authoritative namespace by a pass that started at or after passStart,
// and the one-pass race-coverage window has elapsed.
func (r Record) Superseded(passStart time.Time) bool {
	return r.ProcessedCount > 0 && r.CacheTime.Before(passStart)
}

// Processed returns a copy of the record stamped as observed by a
// scheduled pass at the given time.
func (r Record) Processed(at time.Time) Record {
	r.ProcessedCount++
	r.ProcessedTime = at
	return r
}

// ToAttrs flattens the record into store attributes. Times are encoded
// as unix nanoseconds so persistent backends round-trip them exactly.
func (r Record) ToAttrs() Attributes {
	return Attributes{
		recordAttrRequestID:      r.RequestID,
		recordAttrCacheTime:      r.CacheTime.UnixNano(),
		recordAttrProcessedCount: r.ProcessedCount,
		recordAttrProcessedTime:  r.ProcessedTime.UnixNano(),
		recordAttrAttributes:     map[string]interface{}(r.Attributes),
	}
}

// RecordFromAttrs is the inverse of ToAttrs. Numeric fields may arrive
// as any integer or float type depending on the store backend's codec.
func RecordFromAttrs(attrs Attributes) (Record, error) {
	cacheTime, err := attrInt64(attrs, recordAttrCacheTime)
	if err != nil {
		return Record{}, errors.Trace(err)
	}
	processedCount, err := attrInt64(attrs, recordAttrProcessedCount)
	if err != nil {
		return Record{}, errors.Trace(err)
	}
	processedTime, err := attrInt64(attrs, recordAttrProcessedTime)
	if err != nil {
		return Record{}, errors.Trace(err)
	}
	rec := Record{
		CacheTime:      time.Unix(0, cacheTime),
		ProcessedCount: int(processedCount),
		ProcessedTime:  time.Unix(0, processedTime),
	}
	if id, ok := attrs[recordAttrRequestID].(string); ok {
		rec.RequestID = id
	}
	if inner, ok := attrs[recordAttrAttributes].(map[string]interface{}); ok {
		rec.Attributes = inner
	}
	return rec, nil
}

func attrInt64(attrs Attributes, name string) (int64, error) {
	switch v := attrs[name].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, errors.NotValidf("record attribute %q (%v)", name, v)
		}
		return n, nil
	default:
		return 0, errors.NotValidf("record attribute %q of type %T", name, attrs[name])
	}
}
