package core

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"interactiondb/pkg/domain"
)

// MergeOutcome reports the representative of a merge and the ids the policy
// kept apart from it.
type MergeOutcome struct {
	Representative domain.EntityID
	Merged         []domain.EntityID
	Skipped        []domain.EntityID
}

// MergeEngine collapses entities that turned out to describe the same thing.
type MergeEngine struct {
	store   domain.PersistentStore
	policy  *Policy
	logger  zerolog.Logger
	metrics MetricsRecorder
}

// NewMergeEngine constructs an engine. A nil policy allows every merge.
func NewMergeEngine(store domain.PersistentStore, policy *Policy, logger zerolog.Logger, metrics MetricsRecorder) *MergeEngine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &MergeEngine{store: store, policy: policy, logger: logger, metrics: metrics}
}

// Merge folds every id into the smallest one. Types and policy are checked
// before any write: the ids must share one known type, and only substances
// can be merged. Ids the policy keeps apart are skipped for every type.
func (e *MergeEngine) Merge(ctx context.Context, ids []domain.EntityID) (MergeOutcome, error) {
	ids = distinctSorted(ids)
	if len(ids) == 0 {
		return MergeOutcome{}, errors.New("merge requires at least one id")
	}
	t, err := e.commonType(ctx, ids)
	if err != nil {
		return MergeOutcome{}, err
	}
	out := MergeOutcome{Representative: ids[0]}
	if len(ids) == 1 {
		return out, nil
	}
	if t != domain.EntitySubstance {
		return e.mergeUnsupported(ctx, t, out, ids[1:])
	}
	for _, m := range ids[1:] {
		ok, err := e.mayMerge(ctx, t, out.Representative, m)
		if err != nil {
			return MergeOutcome{}, err
		}
		if !ok {
			out.Skipped = append(out.Skipped, m)
			continue
		}
		if err := e.mergeSubstance(ctx, out.Representative, m); err != nil {
			return MergeOutcome{}, errors.Wrapf(err, "merge substance %s into %s", m, out.Representative)
		}
		if err := e.store.RebindReferences(ctx, m, out.Representative); err != nil && !domain.IsDuplicate(err) {
			return MergeOutcome{}, errors.Wrapf(err, "rebind references of %s", m)
		}
		if err := e.store.MoveNames(ctx, m, out.Representative); err != nil && !domain.IsDuplicate(err) {
			return MergeOutcome{}, errors.Wrapf(err, "move names of %s", m)
		}
		e.logger.Info().Int64("kept", int64(out.Representative)).Int64("merged", int64(m)).Str("type", string(t)).Msg("entities merged")
		e.metrics.CountMerge(string(t), MergeMerged)
		out.Merged = append(out.Merged, m)
	}
	return out, nil
}

// mergeUnsupported evaluates the policy for types without a structural
// merge. Nothing is written: the merge fails as soon as one id is permitted.
func (e *MergeEngine) mergeUnsupported(ctx context.Context, t domain.EntityType, out MergeOutcome, rest []domain.EntityID) (MergeOutcome, error) {
	for _, m := range rest {
		ok, err := e.mayMerge(ctx, t, out.Representative, m)
		if err != nil {
			return MergeOutcome{}, err
		}
		if ok {
			return MergeOutcome{}, domain.UnsupportedMergeTypeError{Type: t}
		}
		out.Skipped = append(out.Skipped, m)
	}
	return out, nil
}

// mayMerge asks the policy and records denials.
func (e *MergeEngine) mayMerge(ctx context.Context, t domain.EntityType, kept, m domain.EntityID) (bool, error) {
	ok, res, err := e.policy.MayMerge(ctx, kept, m)
	if err != nil {
		return false, errors.Wrapf(err, "evaluate merge of %s into %s", m, kept)
	}
	if !ok {
		ev := e.logger.Info().Int64("kept", int64(kept)).Int64("skipped", int64(m)).Str("type", string(t))
		if len(res.Violations) > 0 {
			ev = ev.Str("reason", res.Violations[0].Message)
		}
		ev.Msg("merge denied by unification policy")
		e.metrics.CountMerge(string(t), MergeDenied)
	}
	return ok, nil
}

func (e *MergeEngine) commonType(ctx context.Context, ids []domain.EntityID) (domain.EntityType, error) {
	types, err := e.store.EntityTypes(ctx, ids)
	if err != nil {
		return "", errors.Wrap(err, "load entity types")
	}
	seen := make(map[domain.EntityType]struct{})
	var distinct []domain.EntityType
	missing := false
	for _, id := range ids {
		t, ok := types[id]
		if !ok {
			missing = true
			continue
		}
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			distinct = append(distinct, t)
		}
	}
	if missing || len(distinct) != 1 {
		sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })
		return "", domain.AmbiguousTypeError{IDs: ids, Types: distinct}
	}
	return distinct[0], nil
}

// mergeSubstance moves the participations of m onto rep, summing the
// coefficients of rows both share, then drops the substance row of m.
func (e *MergeEngine) mergeSubstance(ctx context.Context, rep, m domain.EntityID) error {
	for _, role := range domain.Roles() {
		if err := e.sumOrTransfer(ctx, m, rep, role); err != nil {
			return err
		}
	}
	if err := e.store.DeleteSubstance(ctx, m); err != nil {
		return errors.Wrap(err, "delete substance")
	}
	return nil
}

func (e *MergeEngine) sumOrTransfer(ctx context.Context, from, to domain.EntityID, role domain.Role) error {
	rows, err := e.store.Participations(ctx, from, role)
	if err != nil {
		return errors.Wrapf(err, "list %s participations", role)
	}
	for _, row := range rows {
		existing, ok, err := e.store.Participation(ctx, to, row.Reaction, role)
		if err != nil {
			return err
		}
		if ok {
			sum := existing.Coefficient.Add(row.Coefficient)
			if err := e.store.SetCoefficient(ctx, to, row.Reaction, role, sum); err != nil {
				return errors.Wrapf(err, "sum %s coefficient in reaction %s", role, row.Reaction)
			}
			continue
		}
		err = e.store.RepointParticipation(ctx, from, to, row.Reaction, role)
		if err != nil && !domain.IsDuplicate(err) {
			return errors.Wrapf(err, "transfer %s row in reaction %s", role, row.Reaction)
		}
	}
	if err := e.store.DeleteParticipations(ctx, from, role); err != nil {
		return errors.Wrapf(err, "delete %s participations", role)
	}
	return nil
}

func distinctSorted(ids []domain.EntityID) []domain.EntityID {
	seen := make(map[domain.EntityID]struct{}, len(ids))
	out := make([]domain.EntityID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
