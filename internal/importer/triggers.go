package importer

import (
	"context"
	"fmt"
	"regexp"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

// hostExprRe picks host technical names out of trigger expressions, which
// reference items as function(/host/key).
var hostExprRe = regexp.MustCompile(`\(/([^/]+)/`)

// expressionHosts returns the deduplicated host names referenced by the
// given expressions, in reference order.
func expressionHosts(exprs ...string) []string {
	seen := map[string]struct{}{}
	var hosts []string
	for _, expr := range exprs {
		for _, m := range hostExprRe.FindAllStringSubmatch(expr, -1) {
			if _, ok := seen[m[1]]; !ok {
				seen[m[1]] = struct{}{}
				hosts = append(hosts, m[1])
			}
		}
	}
	return hosts
}

func (im *Importer) processTriggers(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Triggers.CreateMissing && !im.opts.Triggers.UpdateExisting {
		return nil
	}
	ops := triggerOps{
		kind:       "trigger",
		svc:        im.store.Triggers(),
		findByUUID: im.ref.FindTriggerIDByUUID,
		findByRef:  im.ref.FindTriggerIDByRef,
		findDep:    im.ref.FindTriggerIDByRef,
		setDb:      im.ref.SetDbTrigger,
	}
	scoped := make([]scopedTrigger, 0, len(b.Triggers))
	for _, t := range b.Triggers {
		scoped = append(scoped, scopedTrigger{t: t})
	}
	if err := im.importTriggers(ctx, im.opts.Triggers, ops, scoped); err != nil {
		return err
	}
	im.ref.RefreshTriggers()
	return nil
}

// triggerOps abstracts over triggers and trigger prototypes. findDep
// resolves a dependency target, which for prototypes may be either a
// prototype or a plain trigger.
type triggerOps struct {
	kind       string
	svc        store.Service[store.TriggerRecord]
	findByUUID func(context.Context, string) (string, error)
	findByRef  func(context.Context, types.TriggerRef) (string, error)
	findDep    func(context.Context, types.TriggerRef) (string, error)
	setDb      func(ref types.TriggerRef, uuid, id string)
}

type scopedTrigger struct {
	t      types.Trigger
	ruleID string // set for prototypes
}

// importTriggers writes triggers in two passes: first the rows themselves
// without dependencies, then one dependency-only update once every target
// is resolvable. Triggers owned entirely by unprocessed hosts are skipped.
//
// Template triggers are matched by UUID with a composite-key fallback;
// host triggers are matched by composite key only and any bundle UUID is
// discarded, since inherited host copies get their own store rows.
func (im *Importer) importTriggers(ctx context.Context, flags types.CreateUpdateDelete, ops triggerOps, scoped []scopedTrigger) error {
	var toCreate, toUpdate []store.TriggerRecord
	var created []types.Trigger // parallel to toCreate
	var withDeps []scopedTrigger
	for _, st := range scoped {
		t := st.t
		hosts := expressionHosts(t.Expression, t.RecoveryExpression)
		if !im.anyOwnerProcessed(hosts) {
			continue
		}
		hostIDs := make([]string, 0, len(hosts))
		isTemplate := false
		for _, host := range hosts {
			tid, err := im.ref.FindTemplateIDByHost(ctx, host)
			if err != nil {
				return err
			}
			id := tid
			if id == "" {
				if id, err = im.ref.FindHostIDByHost(ctx, host); err != nil {
					return err
				}
			} else {
				isTemplate = true
			}
			if id == "" {
				return &ReferenceError{Kind: ops.kind, Name: t.Name, Field: "host", Target: host}
			}
			hostIDs = append(hostIDs, id)
		}

		uuid := t.UUID
		if !isTemplate {
			uuid = ""
		}
		id := ""
		if uuid != "" {
			var err error
			if id, err = ops.findByUUID(ctx, uuid); err != nil {
				return err
			}
		}
		if id == "" {
			var err error
			if id, err = ops.findByRef(ctx, t.Ref()); err != nil {
				return err
			}
		}

		rec := store.TriggerRecord{
			ID:                 id,
			UUID:               uuid,
			Name:               t.Name,
			Expression:         t.Expression,
			RecoveryExpression: t.RecoveryExpression,
			HostIDs:            hostIDs,
			RuleID:             st.ruleID,
			Fields:             t.Extra,
		}
		written := false
		switch {
		case id == "" && flags.CreateMissing:
			toCreate = append(toCreate, rec)
			created = append(created, t)
			written = true
		case id != "" && flags.UpdateExisting:
			toUpdate = append(toUpdate, rec)
			written = true
		}
		if written && len(t.Dependencies) > 0 {
			withDeps = append(withDeps, st)
		}
	}

	if len(toUpdate) > 0 {
		if _, err := ops.svc.Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update %ss: %w", ops.kind, err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := ops.svc.Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create %ss: %w", ops.kind, err)
		}
		for i, t := range created {
			uuid := toCreate[i].UUID
			ops.setDb(t.Ref(), uuid, ids[i])
		}
	}

	return im.updateTriggerDependencies(ctx, ops, withDeps)
}

// updateTriggerDependencies resolves every dependency target before any
// update is issued, so an unresolvable target aborts with no partial
// dependency writes.
func (im *Importer) updateTriggerDependencies(ctx context.Context, ops triggerOps, scoped []scopedTrigger) error {
	if len(scoped) == 0 {
		return nil
	}
	var toUpdate []store.TriggerRecord
	for _, st := range scoped {
		t := st.t
		id, err := ops.findByRef(ctx, t.Ref())
		if err != nil {
			return err
		}
		if id == "" && t.UUID != "" {
			if id, err = ops.findByUUID(ctx, t.UUID); err != nil {
				return err
			}
		}
		if id == "" {
			continue
		}
		depIDs := make([]string, 0, len(t.Dependencies))
		for _, dep := range t.Dependencies {
			depID, err := ops.findDep(ctx, dep)
			if err != nil {
				return err
			}
			if depID == "" {
				return &ReferenceError{
					Kind: ops.kind, Name: t.Name,
					Field: "dependency", Target: dep.Name,
				}
			}
			depIDs = append(depIDs, depID)
		}
		toUpdate = append(toUpdate, store.TriggerRecord{
			ID:                 id,
			Name:               t.Name,
			Expression:         t.Expression,
			RecoveryExpression: t.RecoveryExpression,
			RuleID:             st.ruleID,
			DependsOn:          depIDs,
			Fields:             t.Extra,
		})
	}
	if err := im.checkDependencyCycles(ctx, ops, toUpdate); err != nil {
		return err
	}
	if len(toUpdate) > 0 {
		if _, err := ops.svc.Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update %s dependencies: %w", ops.kind, err)
		}
	}
	return nil
}

// checkDependencyCycles walks the dependency graph the batch is about to
// commit, following chains through store rows the batch does not touch,
// and rejects the whole batch when any chain revisits itself. Runs before
// the update so a cycle is never persisted.
func (im *Importer) checkDependencyCycles(ctx context.Context, ops triggerOps, batch []store.TriggerRecord) error {
	if len(batch) == 0 {
		return nil
	}
	deps := make(map[string][]string, len(batch))
	names := make(map[string]string, len(batch))
	for _, rec := range batch {
		deps[rec.ID] = rec.DependsOn
		names[rec.ID] = rec.Name
	}

	var outside []string
	queued := map[string]struct{}{}
	enqueue := func(ids []string) {
		for _, id := range ids {
			if _, inBatch := deps[id]; inBatch {
				continue
			}
			if _, ok := queued[id]; !ok {
				queued[id] = struct{}{}
				outside = append(outside, id)
			}
		}
	}
	for _, rec := range batch {
		enqueue(rec.DependsOn)
	}
	for len(outside) > 0 {
		rows, err := ops.svc.Get(ctx, store.Query{IDs: outside})
		if err != nil {
			return fmt.Errorf("load %s dependencies: %w", ops.kind, err)
		}
		outside = nil
		for _, row := range rows {
			deps[row.ID] = row.DependsOn
			names[row.ID] = row.Name
			enqueue(row.DependsOn)
		}
	}

	const onPath, done = 1, 2
	state := map[string]int{}
	var walk func(id string) error
	walk = func(id string) error {
		switch state[id] {
		case onPath:
			return fmt.Errorf("%s %q: %w", ops.kind, names[id], ErrDependencyCycle)
		case done:
			return nil
		}
		state[id] = onPath
		for _, dep := range deps[id] {
			if err := walk(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, rec := range batch {
		if err := walk(rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) anyOwnerProcessed(hosts []string) bool {
	for _, host := range hosts {
		if _, ok := im.ownerID(host); ok {
			return true
		}
	}
	return false
}
