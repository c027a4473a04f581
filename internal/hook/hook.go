// Package hook regroups notables by the source whose viewers should see them.
//
// Every link of a notable names another source; the notable is inverted so
// that it lands in a group keyed by that target source together with the
// subgoal, relation and aspect. Each group is then condensed into hooks,
// either by clustering the comparisons or by one grouping judgment per key.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"stepweave/internal/config"
	"stepweave/internal/generation"
	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services"
)

const stageName = "hook"

// DefaultThreshold is the comparison similarity at which inverted notables
// share a hook.
const DefaultThreshold = 0.70

// Clusterer partitions representative texts by similarity.
type Clusterer interface {
	Cluster(ctx context.Context, texts []string, threshold float64) ([][]int, error)
}

// Synthesizer turns notables into hooks.
type Synthesizer struct {
	gen       generation.Generator
	clusterer Clusterer
	threshold float64
	strategy  string
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

// WithStrategy selects config.HookStrategyCluster or config.HookStrategyLLM.
func WithStrategy(strategy string) Option {
	return func(s *Synthesizer) {
		if strategy != "" {
			s.strategy = strategy
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

// New returns a synthesizer using the cluster strategy unless told otherwise.
func New(gen generation.Generator, clusterer Clusterer, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		gen:       gen,
		clusterer: clusterer,
		threshold: DefaultThreshold,
		strategy:  config.HookStrategyCluster,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, stageName)
	return s
}

// Key identifies one inversion group.
type Key struct {
	Target   string
	Subgoal  string
	Relation model.Relation
	Aspect   model.Aspect
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Target, k.Subgoal, k.Relation, k.Aspect)
}

// draft is a hook before ids and scores are attached. Links index into the
// key's inverted items.
type draft struct {
	title       string
	description string
	comparison  string
	links       []int
}

// Invert regroups notable links by target source, subgoal, relation and
// aspect in order of first appearance.
func Invert(notables []model.Notable) ([]Key, map[Key][]model.HookLink) {
	var keys []Key
	groups := make(map[Key][]model.HookLink)
	for _, n := range notables {
		for _, link := range n.Links {
			key := Key{Target: link.OtherSourceID, Subgoal: link.Subgoal, Relation: link.Relation, Aspect: link.Aspect}
			if _, ok := groups[key]; !ok {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], model.HookLink{
				NotableID:    n.ID,
				SourceID:     n.SourceID,
				Subgoal:      n.Subgoal,
				Aspect:       n.Aspect,
				Relation:     link.Relation,
				Title:        n.Title,
				Description:  n.Description,
				Reasoning:    link.Reasoning,
				Comparison:   link.Comparison,
				Importance:   n.Importance,
				Uniqueness:   n.Uniqueness,
				ClusterCount: n.ClusterCount,
				Seconds:      n.Seconds,
			})
		}
	}
	return keys, groups
}

// Synthesize builds hooks for every inversion group.
func (s *Synthesizer) Synthesize(ctx context.Context, task string, notables []model.Notable) ([]model.Hook, model.Validation, error) {
	var validation model.Validation
	hooks := make([]model.Hook, 0)
	keys, groups := Invert(notables)
	for _, key := range keys {
		items := groups[key]
		var (
			drafts []draft
			err    error
		)
		if s.strategy == config.HookStrategyLLM {
			drafts, err = s.grouped(ctx, task, &validation, key, items)
		} else {
			drafts, err = s.clustered(ctx, task, &validation, key, items)
		}
		if err != nil {
			return nil, validation, err
		}
		for _, d := range mergeTitles(drafts) {
			hooks = append(hooks, s.build(key, d, items))
		}
	}
	s.logger.Info("hooks synthesized",
		logging.String("strategy", s.strategy),
		logging.Int("groups", len(keys)),
		logging.Int("hooks", len(hooks)),
		logging.Int("warnings", len(validation.Warnings)),
	)
	return hooks, validation, nil
}

func (s *Synthesizer) clustered(ctx context.Context, task string, validation *model.Validation, key Key, items []model.HookLink) ([]draft, error) {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Comparison
	}
	clusters, err := s.clusterer.Cluster(ctx, texts, s.threshold)
	if err != nil {
		if services.Fatal(err) {
			return nil, err
		}
		s.warn(validation, key, model.WarnGenerationFailure, "cluster comparisons", err)
		return singletons(key, items), nil
	}
	drafts := make([]draft, 0, len(clusters))
	for _, cluster := range clusters {
		if len(cluster) == 1 {
			drafts = append(drafts, single(key, items, cluster[0]))
			continue
		}
		members := make([]model.HookLink, len(cluster))
		for i, idx := range cluster {
			members[i] = items[idx]
		}
		group, err := s.gen.SummarizeHook(ctx, task, key.Subgoal, string(key.Relation), string(key.Aspect), Contents(members))
		if err != nil {
			if services.Fatal(err) {
				return nil, err
			}
			s.warn(validation, key, services.WarningCode(err), "summarize hook", err)
			d := single(key, items, cluster[0])
			d.links = slices.Clone(cluster)
			drafts = append(drafts, d)
			continue
		}
		drafts = append(drafts, draft{
			title:       strings.TrimSpace(group.Title),
			description: strings.TrimSpace(group.Description),
			comparison:  strings.TrimSpace(group.Comparison),
			links:       slices.Clone(cluster),
		})
	}
	return drafts, nil
}

// grouped asks for every hook of a key in one judgment. Contents left out of
// every group keep a hook of their own.
func (s *Synthesizer) grouped(ctx context.Context, task string, validation *model.Validation, key Key, items []model.HookLink) ([]draft, error) {
	grouping, err := s.gen.GroupHooks(ctx, task, key.Subgoal, string(key.Relation), string(key.Aspect), Contents(items))
	if err != nil {
		if services.Fatal(err) {
			return nil, err
		}
		s.warn(validation, key, services.WarningCode(err), "group hooks", err)
		return singletons(key, items), nil
	}

	drafts := make([]draft, 0, len(grouping.Groups))
	byTitle := make(map[string]int, len(grouping.Groups))
	for _, group := range grouping.Groups {
		title := strings.TrimSpace(group.Title)
		if _, ok := byTitle[title]; !ok {
			byTitle[title] = len(drafts)
			drafts = append(drafts, draft{title: title})
		}
		d := &drafts[byTitle[title]]
		d.description = joinSpace(d.description, strings.TrimSpace(group.Description))
		d.comparison = joinSpace(d.comparison, strings.TrimSpace(group.Comparison))
	}

	assigned := make([]bool, len(items))
	for _, a := range grouping.Assignments {
		idx, ok := byTitle[strings.TrimSpace(a.Group)]
		if !ok {
			validation.Add(stageName, model.WarnUnknownTarget, key.String(),
				"content %d assigned to unknown group %q", a.ContentIndex, a.Group)
			continue
		}
		if a.ContentIndex < 0 || a.ContentIndex >= len(items) {
			validation.Add(stageName, model.WarnUnknownTarget, key.String(),
				"group %q cites content %d of %d", a.Group, a.ContentIndex, len(items))
			continue
		}
		if !slices.Contains(drafts[idx].links, a.ContentIndex) {
			drafts[idx].links = append(drafts[idx].links, a.ContentIndex)
		}
		assigned[a.ContentIndex] = true
	}

	out := make([]draft, 0, len(drafts))
	for _, d := range drafts {
		if len(d.links) > 0 {
			out = append(out, d)
		}
	}
	for i, ok := range assigned {
		if ok {
			continue
		}
		validation.Add(stageName, model.WarnUnassignedContent, key.String(),
			"content %d (%s) not assigned to any hook", i, items[i].NotableID)
		out = append(out, single(key, items, i))
	}
	return out, nil
}

func (s *Synthesizer) build(key Key, d draft, items []model.HookLink) model.Hook {
	links := make([]model.HookLink, 0, len(d.links))
	importance := 0.0
	for _, idx := range d.links {
		links = append(links, items[idx])
		importance = max(importance, items[idx].Importance)
	}
	slices.SortStableFunc(links, func(a, b model.HookLink) int {
		switch {
		case a.Importance > b.Importance:
			return -1
		case a.Importance < b.Importance:
			return 1
		}
		return 0
	})
	return model.Hook{
		ID:             fmt.Sprintf("hook-%s-%s", key.Target, s.newID()),
		TargetSourceID: key.Target,
		Subgoal:        key.Subgoal,
		Aspect:         key.Aspect,
		Relation:       key.Relation,
		Title:          d.title,
		Description:    d.description,
		Comparison:     d.comparison,
		Links:          links,
		Importance:     importance,
	}
}

func (s *Synthesizer) warn(validation *model.Validation, key Key, code model.WarningCode, op string, err error) {
	validation.Add(stageName, code, key.String(), "%s: %s", op, services.ErrorDetails(err).Message)
	logging.WarnWithContext(s.logger, op+" failed", "hook_unit_failed",
		logging.String("target_source", key.Target),
		logging.String("subgoal", key.Subgoal),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "rerun the hook stage to retry"),
		logging.String(logging.FieldImpact, "default hook titles used"),
	)
}

// mergeTitles folds drafts sharing a title into the first of them. Their
// descriptions and comparisons are joined with a space and their link sets
// are unioned in ascending order.
func mergeTitles(drafts []draft) []draft {
	out := make([]draft, 0, len(drafts))
	index := make(map[string]int, len(drafts))
	for _, d := range drafts {
		i, ok := index[d.title]
		if !ok {
			index[d.title] = len(out)
			d.links = slices.Clone(d.links)
			out = append(out, d)
			continue
		}
		merged := &out[i]
		merged.description = joinSpace(merged.description, d.description)
		merged.comparison = joinSpace(merged.comparison, d.comparison)
		merged.links = append(merged.links, d.links...)
		slices.Sort(merged.links)
		merged.links = slices.Compact(merged.links)
	}
	return out
}

// DefaultTitle names a hook built from a single inverted notable.
func DefaultTitle(relation model.Relation, aspect model.Aspect) string {
	caser := cases.Title(language.Und)
	return caser.String(string(relation)) + " " + caser.String(string(aspect))
}

func single(key Key, items []model.HookLink, idx int) draft {
	return draft{
		title:       DefaultTitle(key.Relation, key.Aspect),
		description: items[idx].Description,
		comparison:  items[idx].Comparison,
		links:       []int{idx},
	}
}

func singletons(key Key, items []model.HookLink) []draft {
	out := make([]draft, len(items))
	for i := range items {
		out[i] = single(key, items, i)
	}
	return out
}

// Contents renders inverted notables for hook judgments.
func Contents(items []model.HookLink) []generation.Content {
	out := make([]generation.Content, len(items))
	for i, item := range items {
		var b strings.Builder
		fmt.Fprintf(&b, "- **Procedural content**: %s\n", item.Title)
		fmt.Fprintf(&b, "\t- Description: %s\n", item.Description)
		fmt.Fprintf(&b, "\t- Comparison to current tutorial: %s\n", item.Comparison)
		out[i] = generation.Content{Text: b.String()}
	}
	return out
}

func joinSpace(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
