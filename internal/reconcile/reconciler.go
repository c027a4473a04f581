// Package reconcile compares every pair of sources subgoal by subgoal and
// records what each source has that the other lacks or does differently.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stepweave/internal/generation"
	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services"
)

const stageName = "reconcile"

// Anchorer resolves the time a claim about a subgoal points to in one source.
type Anchorer interface {
	AnchorSeconds(ctx context.Context, subgoal, query string) (float64, model.Validation, error)
}

// Reconciler produces alignment sets for all source pairs.
type Reconciler struct {
	gen         generation.Generator
	anchors     map[string]Anchorer
	concurrency int
	newID       func() string
	logger      *slog.Logger
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithConcurrency bounds how many pairs are compared at once.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithIDFunc replaces the random id suffix generator.
func WithIDFunc(fn func() string) Option {
	return func(r *Reconciler) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// New returns a reconciler. anchors maps source ids to their localizers;
// records of a source without one are anchored at 0.
func New(gen generation.Generator, anchors map[string]Anchorer, opts ...Option) *Reconciler {
	r := &Reconciler{
		gen:         gen,
		anchors:     anchors,
		concurrency: 1,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, stageName)
	return r
}

type pairResult struct {
	first, second model.AlignmentSet
	validation    model.Validation
}

// Run compares sources i and j for every i < j. Each pair contributes the
// set attributed to i followed by the set attributed to j, in pair order.
// A diff that yields no judgment is skipped with a warning; a pair that
// fails otherwise contributes two empty sets and a warning.
func (r *Reconciler) Run(ctx context.Context, task string, sources []*model.Source, subgoals []model.Subgoal) ([]model.AlignmentSet, model.Validation, error) {
	var validation model.Validation
	if len(sources) < 2 || len(subgoals) == 0 {
		return []model.AlignmentSet{}, validation, nil
	}

	type pair struct{ i, j int }
	var pairs []pair
	for i := range sources {
		for j := i + 1; j < len(sources); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	results := make([]pairResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for idx, p := range pairs {
		g.Go(func() error {
			a, b := sources[p.i], sources[p.j]
			res, err := r.comparePair(gctx, task, a, b, subgoals)
			if err != nil {
				if services.Fatal(err) {
					return err
				}
				res = pairResult{first: emptySet(a.ID), second: emptySet(b.ID)}
				res.validation.Add(stageName, services.WarningCode(err), a.ID+"|"+b.ID,
					"compare pair: %s", services.ErrorDetails(err).Message)
				logging.WarnWithContext(r.logger, "pair comparison failed", "reconcile_pair_failed",
					logging.String("source_a", a.ID),
					logging.String("source_b", b.ID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "rerun the task to retry the pair"),
					logging.String(logging.FieldImpact, "pair contributes no alignments"),
				)
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, validation, err
	}

	sets := make([]model.AlignmentSet, 0, 2*len(results))
	records := 0
	for _, res := range results {
		sets = append(sets, res.first, res.second)
		validation.Extend(res.validation)
		records += len(res.first.Records) + len(res.second.Records)
	}
	r.logger.Info("sources reconciled",
		logging.Int("pairs", len(pairs)),
		logging.Int("records", records),
		logging.Int("warnings", len(validation.Warnings)),
	)
	return sets, validation, nil
}

func (r *Reconciler) comparePair(ctx context.Context, task string, a, b *model.Source, subgoals []model.Subgoal) (pairResult, error) {
	res := pairResult{first: emptySet(a.ID), second: emptySet(b.ID)}
	for _, subgoal := range subgoals {
		ca, cb := SubgoalContents(a, subgoal.Title), SubgoalContents(b, subgoal.Title)
		if len(ca) == 0 || len(cb) == 0 {
			continue
		}
		diff, err := r.gen.DiffSubgoal(ctx, task, subgoal.Title, ca, cb)
		if err != nil {
			if services.Fatal(err) {
				return res, fmt.Errorf("diff subgoal %q: %w", subgoal.Title, err)
			}
			r.skipDiff(&res.validation, a, b, subgoal.Title, err)
			continue
		}
		if err := r.collect(ctx, &res, a, b, subgoal.Title, diff); err != nil {
			return res, err
		}
	}

	if len(a.Steps) > 0 && len(b.Steps) > 0 {
		diff, err := r.gen.DiffSteps(ctx, task, a.Steps, b.Steps)
		switch {
		case err != nil && services.Fatal(err):
			return res, fmt.Errorf("diff steps: %w", err)
		case err != nil:
			r.skipDiff(&res.validation, a, b, model.MetaSubgoal, err)
		default:
			if err := r.collect(ctx, &res, a, b, model.MetaSubgoal, diff); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// skipDiff records a diff that produced no judgment. The rest of the pair
// is still compared.
func (r *Reconciler) skipDiff(validation *model.Validation, a, b *model.Source, subgoal string, err error) {
	validation.Add(stageName, services.WarningCode(err), a.ID+"|"+b.ID+"/"+subgoal,
		"diff %q: %s", subgoal, services.ErrorDetails(err).Message)
	logging.WarnWithContext(r.logger, "subgoal diff skipped", "reconcile_diff_skipped",
		logging.String("source_a", a.ID),
		logging.String("source_b", b.ID),
		logging.String("subgoal", subgoal),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "rerun the task from reconcile to retry"),
		logging.String(logging.FieldImpact, "subgoal contributes no alignments for this pair"),
	)
}

func (r *Reconciler) collect(ctx context.Context, res *pairResult, a, b *model.Source, subgoal string, diff generation.Diff) error {
	first, err := r.records(ctx, &res.validation, a, b, subgoal, diff.NewContentsIn1)
	if err != nil {
		return err
	}
	second, err := r.records(ctx, &res.validation, b, a, subgoal, diff.NewContentsIn2)
	if err != nil {
		return err
	}
	res.first.Records = append(res.first.Records, first...)
	res.second.Records = append(res.second.Records, second...)
	return nil
}

func (r *Reconciler) records(ctx context.Context, validation *model.Validation, owner, other *model.Source, subgoal string, candidates []generation.Candidate) ([]model.AlignmentRecord, error) {
	out := make([]model.AlignmentRecord, 0, len(candidates))
	for _, c := range candidates {
		aspect := model.Aspect(strings.ToLower(strings.TrimSpace(string(c.Aspect))))
		if !aspect.Valid() {
			validation.Add(stageName, model.WarnUnknownTarget, owner.ID+"/"+subgoal,
				"unknown aspect %q, recorded as other", c.Aspect)
			aspect = model.AspectOther
		}
		relation := model.Relation(strings.ToLower(strings.TrimSpace(string(c.Relation))))
		if !relation.Valid() {
			validation.Add(stageName, model.WarnUnknownTarget, owner.ID+"/"+subgoal,
				"unknown relation %q, recorded as additional", c.Relation)
			relation = model.RelationAdditional
		}

		seconds, err := r.anchor(ctx, validation, owner.ID, subgoal, c.Description)
		if err != nil {
			return nil, err
		}
		out = append(out, model.AlignmentRecord{
			ID:            fmt.Sprintf("link-%s-%s", owner.ID, r.newID()),
			SourceID:      owner.ID,
			OtherSourceID: other.ID,
			Subgoal:       subgoal,
			Aspect:        aspect,
			Relation:      relation,
			Importance:    min(max(c.Importance, 1), 5),
			Seconds:       seconds,
			Title:         strings.TrimSpace(c.Title),
			Description:   strings.TrimSpace(c.Description),
			Reasoning:     strings.TrimSpace(c.Reasoning),
			Comparison:    strings.TrimSpace(c.Comparison),
		})
	}
	return out, nil
}

func (r *Reconciler) anchor(ctx context.Context, validation *model.Validation, sourceID, subgoal, query string) (float64, error) {
	anchor, ok := r.anchors[sourceID]
	if !ok || anchor == nil {
		return 0, nil
	}
	seconds, v, err := anchor.AnchorSeconds(ctx, subgoal, query)
	if err != nil {
		return 0, fmt.Errorf("anchor %s: %w", sourceID, err)
	}
	// Meta records never have a segment of their own.
	if subgoal != model.MetaSubgoal {
		validation.Extend(v)
	}
	return seconds, nil
}

// SubgoalContents renders each non-empty category of the source's summaries
// for subgoal as one content, carrying that category's frames.
func SubgoalContents(source *model.Source, subgoal string) []generation.Content {
	var out []generation.Content
	for _, summary := range source.SummariesFor(subgoal) {
		for _, part := range summary.Parts() {
			out = append(out, generation.Content{Text: "- " + part.Text, FramePaths: part.FramePaths})
		}
	}
	return out
}

func emptySet(sourceID string) model.AlignmentSet {
	return model.AlignmentSet{SourceID: sourceID, Records: []model.AlignmentRecord{}}
}
