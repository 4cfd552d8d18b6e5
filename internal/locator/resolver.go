package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result is the outcome of a successful resolution.
type Result struct {
	ResolutionID string
	Elements     []Element
	Expression   Expression
	Index        int
	Origin       Origin
	Attempts     []Attempt
}

// WasOriginal reports whether the configured locator matched as the first
// step. A caller fallback or generated selector at step 0 is not original.
func (r *Result) WasOriginal() bool {
	return r.Index == 0 && r.Origin == OriginConfigured
}

// First returns the first matched element.
func (r *Result) First() Element {
	if len(r.Elements) == 0 {
		return nil
	}
	return r.Elements[0]
}

// Resolve queries each step of chain in order and returns the full match set
// of the first step that matched anything. Query errors count as no match and
// are kept on the attempt. Later steps are never queried once one matches.
func Resolve(ctx context.Context, scope Context, chain Chain) (*Result, error) {
	if len(chain) == 0 {
		return nil, ErrInvalidChain
	}

	attempts := make([]Attempt, 0, len(chain))
	var lastErr error
	for i, step := range chain {
		elems, err := scope.FindAll(ctx, step.Expression)
		attempts = append(attempts, Attempt{Index: i, Step: step, Matches: len(elems), Err: err})
		if err != nil {
			lastErr = err
			continue
		}
		if len(elems) > 0 {
			return &Result{
				Elements:   elems,
				Expression: step.Expression,
				Index:      i,
				Origin:     step.Origin,
				Attempts:   attempts,
			}, nil
		}
	}

	return nil, &NotFoundError{Tried: len(chain), Attempts: attempts, Cause: lastErr}
}

// Options controls healing behavior.
type Options struct {
	// AutoUpdate writes healed locators back to the store.
	AutoUpdate bool
	// Learning enables the scan-for-anything fallback once a chain is exhausted.
	Learning bool
	// TestHookAttribute is the stable attribute used by generated and learned
	// selectors. Defaults to data-test.
	TestHookAttribute string
}

// Request describes one element lookup.
type Request struct {
	// Key selects the configured value in the store. A zero Key resolves an
	// anonymous chain made of Fallbacks only, with no bookkeeping.
	Key         Key
	Fallbacks   []Expression
	Description string

	DisableLearning bool
	DisablePersist  bool
}

// Resolver resolves named locators against a store and keeps healing
// bookkeeping. It is safe for concurrent use.
type Resolver struct {
	store  Store
	logger *zap.Logger
	opts   Options
	state  *State
	now    func() time.Time
}

// NewResolver creates a resolver. store may be nil, in which case nothing is
// looked up or persisted.
func NewResolver(store Store, logger *zap.Logger, opts Options) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TestHookAttribute == "" {
		opts.TestHookAttribute = DefaultTestHookAttribute
	}
	return &Resolver{
		store:  store,
		logger: logger.Named("locator"),
		opts:   opts,
		state:  NewState(),
		now:    time.Now,
	}
}

func (r *Resolver) Options() Options { return r.opts }

// Resolve finds the elements for req within scope.
func (r *Resolver) Resolve(ctx context.Context, scope Context, req Request) (*Result, error) {
	id := uuid.NewString()
	logger := r.logger.With(zap.String("resolution_id", id), zap.Stringer("key", req.Key))

	stored := r.lookup(ctx, req.Key, logger)
	chain := BuildChain(ParseChain(stored), req.Fallbacks, req.Description, r.opts.TestHookAttribute)
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w (key %s)", ErrInvalidChain, req.Key)
	}

	res, err := Resolve(ctx, scope, chain)
	if err == nil {
		res.ResolutionID = id
		r.logAttempts(logger, res.Attempts)
		r.accept(ctx, req, stored, res, logger)
		return res, nil
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}
	nf.Key = req.Key
	r.logAttempts(logger, nf.Attempts)

	if !r.opts.Learning || req.DisableLearning {
		return nil, nf
	}

	logger.Info("All strategies failed, attempting to learn a locator.",
		zap.Int("tried", nf.Tried), zap.String("description", req.Description))

	learned, ok := Learn(ctx, scope, r.opts.TestHookAttribute)
	if !ok {
		logger.Warn("No visible element available to learn from.")
		return nil, nf
	}

	step := Step{Expression: learned, Origin: OriginLearned}
	elems, qerr := scope.FindAll(ctx, learned)
	nf.Attempts = append(nf.Attempts, Attempt{Index: len(chain), Step: step, Matches: len(elems), Err: qerr})
	nf.Tried++
	if qerr != nil || len(elems) == 0 {
		if qerr != nil {
			nf.Cause = qerr
		}
		logger.Warn("Learned locator did not match on requery.",
			zap.Stringer("expression", learned), zap.Error(qerr))
		return nil, nf
	}

	res = &Result{
		ResolutionID: id,
		Elements:     elems,
		Expression:   learned,
		Index:        len(chain),
		Origin:       OriginLearned,
		Attempts:     nf.Attempts,
	}
	r.accept(ctx, req, stored, res, logger)
	return res, nil
}

// Stats returns a snapshot of the healing bookkeeping.
func (r *Resolver) Stats() Stats {
	st := r.state.Snapshot()
	st.AutoUpdateEnabled = r.opts.AutoUpdate
	st.LearningEnabled = r.opts.Learning
	return st
}

// History returns the distinct expressions that have resolved key, oldest first.
func (r *Resolver) History(key Key) []Expression {
	return r.state.History(key)
}

// ClearHealingCache resets the bookkeeping, typically between independent runs.
func (r *Resolver) ClearHealingCache() {
	r.state.Clear()
	r.logger.Debug("Healing cache cleared.")
}

func (r *Resolver) lookup(ctx context.Context, key Key, logger *zap.Logger) string {
	if key.IsZero() || r.store == nil {
		return ""
	}
	v, ok, err := r.store.Get(ctx, key.Namespace, key.Name)
	if err != nil {
		logger.Warn("Failed to read configured locator, continuing without it.", zap.Error(err))
		return ""
	}
	if !ok {
		logger.Debug("No configured locator for key.")
	}
	return v
}

func (r *Resolver) accept(ctx context.Context, req Request, stored string, res *Result, logger *zap.Logger) {
	r.state.Record(Record{
		ResolutionID: res.ResolutionID,
		Key:          req.Key,
		Expression:   res.Expression,
		Index:        res.Index,
		Origin:       res.Origin,
		WasOriginal:  res.WasOriginal(),
		At:           r.now(),
	})

	if res.WasOriginal() {
		return
	}

	logger.Info("Locator healed.",
		zap.String("configured", stored),
		zap.Stringer("winner", res.Expression),
		zap.Int("index", res.Index),
		zap.Stringer("origin", res.Origin),
	)

	if !r.shouldPersist(req, res) {
		return
	}

	updated := res.Expression.String()
	if got := ParseChain(updated); len(got) != 1 || got[0] != res.Expression {
		logger.Warn("Healed locator does not read back as a single step, not persisting.",
			zap.String("value", updated), zap.Int("steps", len(got)))
		return
	}
	comment := fmt.Sprintf("self-healed locator updated from '%s' to '%s'", stored, updated)
	if err := r.store.Set(ctx, req.Key.Namespace, req.Key.Name, updated, comment); err != nil {
		logger.Error("Failed to persist healed locator.", zap.String("value", updated), zap.Error(err))
		return
	}
	logger.Info("Persisted healed locator.", zap.String("value", updated))
}

// shouldPersist gates write-back. Nothing at step 0 is written. Learned
// locators are written regardless of AutoUpdate.
func (r *Resolver) shouldPersist(req Request, res *Result) bool {
	if req.Key.IsZero() || r.store == nil || req.DisablePersist || res.Index == 0 {
		return false
	}
	return res.Origin == OriginLearned || r.opts.AutoUpdate
}

func (r *Resolver) logAttempts(logger *zap.Logger, attempts []Attempt) {
	for _, a := range attempts {
		if a.Err != nil {
			logger.Debug("Strategy query failed, treating as no match.",
				zap.Int("index", a.Index),
				zap.Stringer("expression", a.Step.Expression),
				zap.Error(a.Err),
			)
		}
	}
}
