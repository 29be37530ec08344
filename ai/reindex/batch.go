package reindex

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/store"
)

// Criteria selects the records of one entity for batch reindexing.
type Criteria struct {
	Entity           store.EntityType
	MissingEmbedding bool
	Status           *string
	UpdatedAfter     *time.Time
	// Where is an optional CEL predicate over the record fields, e.g.
	// `record.status == "active" && has(record.cv_url)`.
	Where string
	Limit int
}

// Failure is one record a batch could not reindex.
type Failure struct {
	RecordID string
	Err      error
}

// Report aggregates a batch run.
type Report struct {
	Selected  int
	Skipped   int // filtered out by Where
	Succeeded int
	Failed    []Failure
}

// ReindexByCriteria reindexes every matching record independently, each
// write in its own statement. Failed records are collected in the report and
// never stop the batch. Only selection errors are returned.
func (p *Pipeline) ReindexByCriteria(ctx context.Context, c *Criteria) (*Report, error) {
	var predicate cel.Program
	if strings.TrimSpace(c.Where) != "" {
		prg, err := compilePredicate(c.Where)
		if err != nil {
			return nil, err
		}
		predicate = prg
	}

	ids, err := p.store.ListRecordIDs(ctx, &store.FindRecordIDs{
		Entity:           c.Entity,
		MissingEmbedding: c.MissingEmbedding,
		Status:           c.Status,
		UpdatedAfter:     c.UpdatedAfter,
		Limit:            c.Limit,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{Selected: len(ids)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.batchConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			matched, err := p.reindexOne(ctx, c.Entity, id, predicate)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, Failure{RecordID: id, Err: err})
				p.logger.WarnContext(ctx, "batch reindex failed",
					"entity", c.Entity,
					"record_id", id,
					"error", err)
			case !matched:
				report.Skipped++
			default:
				report.Succeeded++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].RecordID < report.Failed[j].RecordID
	})
	p.logger.InfoContext(ctx, "batch reindex completed",
		"entity", c.Entity,
		"selected", report.Selected,
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
		"latency_ms", time.Since(start).Milliseconds())
	return report, nil
}

func (p *Pipeline) reindexOne(ctx context.Context, entity store.EntityType, id string, predicate cel.Program) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rec, err := p.store.GetRecord(ctx, entity, id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, errors.Wrapf(ErrRecordNotFound, "%s %s", entity, id)
	}
	if predicate != nil {
		ok, err := evalPredicate(predicate, rec)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, p.Reindex(ctx, rec, TriggerManual)
}

// compilePredicate compiles a CEL expression over the variables record
// (the JSON field bag), id and entity.
func compilePredicate(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("id", cel.StringType),
		cel.Variable("entity", cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CEL environment")
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errs.InvalidInput("invalid where expression %q: %v", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errs.InvalidInput("where expression must be boolean, got %s", out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build CEL program")
	}
	return prg, nil
}

func evalPredicate(prg cel.Program, rec store.Record) (bool, error) {
	data, err := store.EncodeRecord(rec)
	if err != nil {
		return false, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, errors.Wrap(err, "failed to decode record fields")
	}

	out, _, err := prg.Eval(map[string]any{
		"record": fields,
		"id":     rec.RecordID(),
		"entity": string(rec.Entity()),
	})
	if err != nil {
		// Empty fields are omitted from the bag, so a missing key is a non-match.
		return false, nil
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("where expression returned %T, want bool", out.Value())
	}
	return matched, nil
}
