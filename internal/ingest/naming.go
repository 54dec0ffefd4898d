package ingest

import (
	"fmt"
	"path"
	"time"
)

// tempFileName is the single, worker-owned temp path name reused across
// every rollover (§3 invariant 4, §9 "reused temp path across rollovers").
func tempFileName(instance string, index int) string {
	return fmt.Sprintf("%s_%d.tmp", instance, index)
}

// finalFileName builds the dated final name: §4.2 "Final name" —
// <yyyyMMdd-HHmmssSSS>_<instance>_<index>.parquet, local time zone,
// millisecond resolution. Go's time.Format can't express a bare
// millisecond suffix with no separator via a single layout string, so the
// milliseconds are appended by hand.
func finalFileName(now time.Time, instance string, index int) string {
	ts := fmt.Sprintf("%s%03d", now.Format("20060102-150405"), now.Nanosecond()/1e6)
	return fmt.Sprintf("%s_%s_%d.parquet", ts, instance, index)
}

// destinationDir resolves the directory a finalised file belongs in: flat
// under target when datePattern is empty, or target/format(now, pattern)
// otherwise (§4.2 "Destination directory").
func destinationDir(target, datePattern string, now time.Time) string {
	if datePattern == "" {
		return target
	}
	return path.Join(target, now.Format(datePattern))
}
