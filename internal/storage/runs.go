package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// runsPrefix is the key prefix every run lives under.
const runsPrefix = "runs/"

// RunNamingStrategy defines how generation runs are keyed in the store
type RunNamingStrategy int

const (
	// RunUUID uses the full run UUID (default)
	RunUUID RunNamingStrategy = iota
	// RunTimestamp uses timestamp + short ID
	RunTimestamp
	// RunDescriptive uses timestamp + sanitized script title + short ID
	RunDescriptive
)

// ParseRunNaming maps a configured strategy name onto a strategy. Unknown
// names fall back to RunUUID.
func ParseRunNaming(name string) RunNamingStrategy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "timestamp":
		return RunTimestamp
	case "descriptive":
		return RunDescriptive
	default:
		return RunUUID
	}
}

// RunKey builds the key prefix a run's progress is stored under.
func RunKey(runID, title string, strategy RunNamingStrategy, now time.Time) string {
	shortID := shortRunID(runID)

	switch strategy {
	case RunTimestamp:
		// Format: 2025-07-16_1530_82f06b15
		return path.Join("runs", fmt.Sprintf("%s_%s", now.Format("2006-01-02_1504"), shortID))

	case RunDescriptive:
		// Format: 2025-07-16_1530_roadside-dhaba_82f06b15
		return path.Join("runs", fmt.Sprintf("%s_%s_%s", now.Format("2006-01-02_1504"), sanitizeForKey(title, 30), shortID))

	default:
		return path.Join("runs", runID)
	}
}

// sanitizeForKey converts a string to a safe key component
func sanitizeForKey(s string, maxLen int) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	out := strings.Trim(b.String(), "-")
	if len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "-")
	}
	if out == "" {
		out = "script"
	}
	return out
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

// ListRuns returns the distinct run prefixes ("runs/<name>") in key order.
func ListRuns(ctx context.Context, s Store) ([]string, error) {
	keys, err := s.List(ctx, runsPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var runs []string
	seen := make(map[string]bool)
	for _, k := range keys {
		parts := strings.SplitN(k, "/", 3)
		if len(parts) < 3 || parts[1] == "" {
			continue
		}
		prefix := parts[0] + "/" + parts[1]
		if !seen[prefix] {
			seen[prefix] = true
			runs = append(runs, prefix)
		}
	}
	return runs, nil
}

// RunCandidates returns the stored run prefixes that runID may have been
// saved under by any naming strategy. Timestamped names only carry a short
// ID, so callers confirm the match against the stored run.
func RunCandidates(ctx context.Context, s Store, runID string) ([]string, error) {
	runs, err := ListRuns(ctx, s)
	if err != nil {
		return nil, err
	}
	short := shortRunID(runID)
	var out []string
	for _, r := range runs {
		name := path.Base(r)
		if name == runID || strings.HasSuffix(name, "_"+short) {
			out = append(out, r)
		}
	}
	return out, nil
}
