// Package notable deduplicates alignment records into notables: one per
// cluster of similar records sharing a source, subgoal and aspect.
package notable

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"stepweave/internal/generation"
	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services"
)

const stageName = "notable"

// DefaultThreshold is the similarity at which two records count as the same
// notable.
const DefaultThreshold = 0.80

// Clusterer partitions representative texts by similarity.
type Clusterer interface {
	Cluster(ctx context.Context, texts []string, threshold float64) ([][]int, error)
}

// Synthesizer turns alignment sets into notables.
type Synthesizer struct {
	gen       generation.Generator
	clusterer Clusterer
	threshold float64
	newID     func() string
	logger    *slog.Logger
}

// Option customizes a Synthesizer.
type Option func(*Synthesizer)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(s *Synthesizer) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithIDFunc replaces the random id suffix generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Synthesizer) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// New returns a synthesizer.
func New(gen generation.Generator, clusterer Clusterer, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		gen:       gen,
		clusterer: clusterer,
		threshold: DefaultThreshold,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, stageName)
	return s
}

type groupKey struct {
	subgoal string
	aspect  model.Aspect
}

type linkKey struct {
	other    string
	relation model.Relation
}

// Synthesize clusters the records of every (source, subgoal, aspect) group.
// Sources are visited in order of first appearance, as are the groups within
// a source.
func (s *Synthesizer) Synthesize(ctx context.Context, task string, sets []model.AlignmentSet) ([]model.Notable, model.Validation, error) {
	var validation model.Validation
	notables := make([]model.Notable, 0)
	if len(sets) == 0 {
		return notables, validation, nil
	}

	var sourceOrder []string
	perSource := make(map[string][]model.AlignmentRecord)
	for _, set := range sets {
		if _, ok := perSource[set.SourceID]; !ok {
			sourceOrder = append(sourceOrder, set.SourceID)
			perSource[set.SourceID] = []model.AlignmentRecord{}
		}
		perSource[set.SourceID] = append(perSource[set.SourceID], set.Records...)
	}
	sourceCount := max(model.DistinctSources(sets), 1)

	for _, sourceID := range sourceOrder {
		var keys []groupKey
		groups := make(map[groupKey][]model.AlignmentRecord)
		for _, record := range perSource[sourceID] {
			key := groupKey{subgoal: record.Subgoal, aspect: record.Aspect}
			if _, ok := groups[key]; !ok {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], record)
		}
		for _, key := range keys {
			out, err := s.group(ctx, task, &validation, sourceID, key, groups[key], sourceCount)
			if err != nil {
				return nil, validation, err
			}
			notables = append(notables, out...)
		}
	}

	s.logger.Info("notables synthesized",
		logging.Int("sources", len(sourceOrder)),
		logging.Int("notables", len(notables)),
		logging.Int("warnings", len(validation.Warnings)),
	)
	return notables, validation, nil
}

func (s *Synthesizer) group(ctx context.Context, task string, validation *model.Validation, sourceID string, key groupKey, records []model.AlignmentRecord, sourceCount int) ([]model.Notable, error) {
	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Title + ": " + record.Description
	}
	clusters, err := s.clusterer.Cluster(ctx, texts, s.threshold)
	if err != nil {
		if services.Fatal(err) {
			return nil, err
		}
		validation.Add(stageName, model.WarnGenerationFailure, scope(sourceID, key),
			"clustering failed, keeping records apart: %s", services.ErrorDetails(err).Message)
		logging.WarnWithContext(s.logger, "record clustering failed", "notable_cluster_failed",
			logging.String(logging.FieldSourceID, sourceID),
			logging.String("subgoal", key.subgoal),
			logging.Error(err),
			logging.String(logging.FieldImpact, "each record becomes its own notable"),
		)
		clusters = make([][]int, len(records))
		for i := range records {
			clusters[i] = []int{i}
		}
	}

	out := make([]model.Notable, 0, len(clusters))
	for _, cluster := range clusters {
		members := make([]model.AlignmentRecord, len(cluster))
		for i, idx := range cluster {
			members[i] = records[idx]
		}
		summary, err := s.summarize(ctx, task, validation, sourceID, key, members)
		if err != nil {
			return nil, err
		}
		links, err := s.links(ctx, task, validation, sourceID, key, members)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Notable{
			ID:           fmt.Sprintf("notable-%s-%s", sourceID, s.newID()),
			SourceID:     sourceID,
			Subgoal:      key.subgoal,
			Aspect:       key.aspect,
			Title:        summary.Title,
			Description:  summary.Description,
			Reasoning:    summary.Reasoning,
			Comparison:   summary.Comparison,
			Links:        links,
			Importance:   MeanImportance(members),
			Uniqueness:   float64(len(links)) / float64(sourceCount),
			Seconds:      MaxSeconds(members),
			ClusterCount: len(clusters),
		})
	}
	return out, nil
}

// links merges a cluster's records that share the other source and relation.
func (s *Synthesizer) links(ctx context.Context, task string, validation *model.Validation, sourceID string, key groupKey, members []model.AlignmentRecord) ([]model.NotableLink, error) {
	var order []linkKey
	byKey := make(map[linkKey][]model.AlignmentRecord)
	for _, record := range members {
		k := linkKey{other: record.OtherSourceID, relation: record.Relation}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], record)
	}

	links := make([]model.NotableLink, 0, len(order))
	for _, k := range order {
		records := byKey[k]
		summary, err := s.summarize(ctx, task, validation, sourceID, key, records)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(records))
		for i, record := range records {
			ids[i] = record.ID
		}
		links = append(links, model.NotableLink{
			ID:            records[0].ID,
			OtherSourceID: k.other,
			Subgoal:       key.subgoal,
			Aspect:        key.aspect,
			Relation:      k.relation,
			Title:         summary.Title,
			Description:   summary.Description,
			Reasoning:     summary.Reasoning,
			Comparison:    summary.Comparison,
			Importance:    MeanImportance(records),
			Seconds:       MaxSeconds(records),
			RecordIDs:     ids,
		})
	}
	slices.SortStableFunc(links, func(a, b model.NotableLink) int {
		switch {
		case a.Importance > b.Importance:
			return -1
		case a.Importance < b.Importance:
			return 1
		}
		return 0
	})
	return links, nil
}

// summarize copies a lone record's fields and asks the generator to merge
// several. A failed merge falls back to the first record.
func (s *Synthesizer) summarize(ctx context.Context, task string, validation *model.Validation, sourceID string, key groupKey, records []model.AlignmentRecord) (generation.Summary, error) {
	first := generation.Summary{
		Title:       records[0].Title,
		Description: records[0].Description,
		Reasoning:   records[0].Reasoning,
		Comparison:  records[0].Comparison,
	}
	if len(records) == 1 {
		return first, nil
	}
	summary, err := s.gen.SummarizeNotable(ctx, task, key.subgoal, string(key.aspect), Contents(records))
	if err != nil {
		if services.Fatal(err) {
			return generation.Summary{}, err
		}
		validation.Add(stageName, services.WarningCode(err), scope(sourceID, key),
			"summarize %d records: %s", len(records), services.ErrorDetails(err).Message)
		logging.WarnWithContext(s.logger, "notable summary failed", "notable_summary_failed",
			logging.String(logging.FieldSourceID, sourceID),
			logging.String("subgoal", key.subgoal),
			logging.String("aspect", string(key.aspect)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rerun the notable stage to retry"),
			logging.String(logging.FieldImpact, "first record's wording used"),
		)
		return first, nil
	}
	return summary, nil
}

// Contents renders records for a merge judgment.
func Contents(records []model.AlignmentRecord) []generation.Content {
	out := make([]generation.Content, len(records))
	for i, record := range records {
		var b strings.Builder
		fmt.Fprintf(&b, "- **Procedural content**: %s\n", record.Title)
		fmt.Fprintf(&b, "\t- Description: %s\n", record.Description)
		fmt.Fprintf(&b, "\t- Reasoning: %s\n", record.Reasoning)
		fmt.Fprintf(&b, "\t- Comparison to other tutorials: %s\n", record.Comparison)
		out[i] = generation.Content{Text: b.String()}
	}
	return out
}

// MeanImportance averages record importances; zero records score 0.
func MeanImportance(records []model.AlignmentRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	total := 0
	for _, record := range records {
		total += record.Importance
	}
	return float64(total) / float64(len(records))
}

// MaxSeconds returns the latest anchor among records, never below 0.
func MaxSeconds(records []model.AlignmentRecord) float64 {
	seconds := 0.0
	for _, record := range records {
		seconds = max(seconds, record.Seconds)
	}
	return seconds
}

func scope(sourceID string, key groupKey) string {
	return sourceID + "/" + key.subgoal + "/" + string(key.aspect)
}
