package memory

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mnemo-dev/mnemo/internal/config"
)

// buildLines assembles the snapshot content in its designed order:
// profile entries, high-confidence facts grouped by key prefix, the
// recent-topics line, then backfill. Each source degrades to empty on a
// storage failure — a short snapshot beats a failed build.
func (m *Memory) buildLines(userID string) []string {
	var lines []string

	// Profile entries lead, verbatim.
	profile, err := m.DB.ListProfile(userID)
	if err != nil {
		log.Printf("build snapshot user=%s: list profile: %v", userID, err)
	}
	for i, p := range profile {
		if i >= config.MaxProfileLines {
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %s", p.Key, p.Value))
	}

	// High-confidence facts, at most MaxFactsPerPrefix per key-prefix group
	// so one dominant behavior category cannot crowd out the rest. Facts
	// arrive score-desc; the cap is enforced while walking so the global
	// line limit applies both within and across groups. Facts displaced by
	// the cap are kept aside for backfill.
	facts, err := m.DB.ListHighConfidenceFacts(userID, config.ConfidenceThreshold)
	if err != nil {
		log.Printf("build snapshot user=%s: list facts: %v", userID, err)
	}
	perPrefix := make(map[string]int)
	var overflow []string
	for _, f := range facts {
		line := fmt.Sprintf("%s=%s (s=%.1f)", f.Key, f.Value, f.Score)
		prefix := keyPrefix(f.Key)
		if perPrefix[prefix] >= config.MaxFactsPerPrefix {
			overflow = append(overflow, line)
			continue
		}
		if len(lines) >= config.SnapshotMaxLines {
			break
		}
		perPrefix[prefix]++
		lines = append(lines, line)
	}

	// Decayed topic aggregation over recent events.
	if topics := m.topTopics(userID); len(topics) > 0 && len(lines) < config.SnapshotMaxLines {
		lines = append(lines, "recent.topics="+strings.Join(topics, ","))
	}

	// Backfill from displaced facts until the minimum is met. Never
	// fabricate content to reach it.
	for _, line := range overflow {
		if len(lines) >= config.SnapshotMinLines {
			break
		}
		lines = append(lines, line)
	}

	return lines
}

// keyPrefix returns the fact key's namespace: the substring before the
// first dot, or the whole key when there is none.
func keyPrefix(key string) string {
	if prefix, _, ok := strings.Cut(key, "."); ok {
		return prefix
	}
	return key
}

// topTopics sums exponentially decayed event weight per topic over the most
// recent topic-bearing events and returns the strongest TopTopics.
func (m *Memory) topTopics(userID string) []string {
	events, err := m.DB.RecentTopicEvents(userID, config.TopicEventSample)
	if err != nil {
		log.Printf("build snapshot user=%s: recent topic events: %v", userID, err)
		return nil
	}
	if len(events) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	weights := make(map[string]float64)
	for _, e := range events {
		ageDays := float64(now-e.AtUTC) / float64(24*time.Hour/time.Millisecond)
		if ageDays < 0 {
			ageDays = 0
		}
		weights[e.Topic] += e.Weight * math.Exp(-ageDays/config.DecayFactorDays)
	}

	topics := make([]string, 0, len(weights))
	for t := range weights {
		topics = append(topics, t)
	}
	// Weight desc, then name for a stable line.
	sort.Slice(topics, func(i, j int) bool {
		if weights[topics[i]] != weights[topics[j]] {
			return weights[topics[i]] > weights[topics[j]]
		}
		return topics[i] < topics[j]
	})
	if len(topics) > config.TopTopics {
		topics = topics[:config.TopTopics]
	}
	return topics
}
