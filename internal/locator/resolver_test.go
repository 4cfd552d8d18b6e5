package locator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

var (
	exprA = locator.XPath("//button[@id='old-submit']")
	exprB = locator.CSS("#submit")
	exprC = locator.CSS("[data-test='submit']")

	loginKey = locator.Key{Namespace: "login", Name: "submitButton"}
)

func chainOf(exprs ...locator.Expression) locator.Chain {
	c := make(locator.Chain, len(exprs))
	for i, e := range exprs {
		c[i] = locator.Step{Expression: e, Origin: locator.OriginConfigured}
	}
	return c
}

func newResolver(t *testing.T, store locator.Store, opts locator.Options) *locator.Resolver {
	t.Helper()
	return locator.NewResolver(store, zaptest.NewLogger(t), opts)
}

func TestResolveOrdering(t *testing.T) {
	target := el("button", true, "id", "submit")
	scope := newFakeContext().on(exprB, target).on(exprC, el("button", true))
	store := newFakeStore().put("login", "submitButton", locator.FormatChain([]locator.Expression{exprA, exprB, exprC}))
	r := newResolver(t, store, locator.Options{})

	res, err := r.Resolve(context.Background(), scope, locator.Request{Key: loginKey})
	require.NoError(t, err)

	assert.Equal(t, exprB, res.Expression)
	assert.Equal(t, []locator.Element{target}, res.Elements)
	assert.Equal(t, 1, res.Index)
	assert.False(t, res.WasOriginal())

	assert.Equal(t, 1, scope.callCount(exprA))
	assert.Equal(t, 1, scope.callCount(exprB))
	assert.Equal(t, 0, scope.callCount(exprC))

	rec, ok := r.Stats().Latest[loginKey.String()]
	require.True(t, ok)
	assert.False(t, rec.WasOriginal)
	assert.Equal(t, 1, rec.Index)
	assert.Equal(t, res.ResolutionID, rec.ResolutionID)
}

func TestResolveFirstMatchShortCircuit(t *testing.T) {
	a1, a2 := el("a", true), el("a", true)
	b1 := el("b", true)
	scope := newFakeContext().on(exprA, a1, a2).on(exprB, b1)

	res, err := locator.Resolve(context.Background(), scope, chainOf(exprA, exprB))
	require.NoError(t, err)

	assert.Equal(t, []locator.Element{a1, a2}, res.Elements)
	assert.True(t, res.WasOriginal())
	assert.Equal(t, 0, scope.callCount(exprB))
}

func TestResolveQueryErrorsAreNoMatch(t *testing.T) {
	boom := errors.New("stale element")
	target := el("button", true)
	scope := newFakeContext().fail(exprA, boom).on(exprB, target)

	res, err := locator.Resolve(context.Background(), scope, chainOf(exprA, exprB))
	require.NoError(t, err)
	assert.Equal(t, exprB, res.Expression)
	require.Len(t, res.Attempts, 2)
	assert.ErrorIs(t, res.Attempts[0].Err, boom)
	assert.NoError(t, res.Attempts[1].Err)
	assert.Equal(t, 1, res.Attempts[1].Matches)
}

func TestResolveNotFoundCarriesLastError(t *testing.T) {
	boom := errors.New("invalid selector")
	scope := newFakeContext().fail(exprB, boom)
	r := newResolver(t, newFakeStore().put("login", "submitButton", "//button[@id='old-submit'] | #submit"), locator.Options{})

	_, err := r.Resolve(context.Background(), scope, locator.Request{Key: loginKey})
	require.Error(t, err)
	assert.ErrorIs(t, err, locator.ErrNotFound)
	assert.ErrorIs(t, err, boom)

	var nf *locator.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, loginKey, nf.Key)
	assert.Equal(t, 2, nf.Tried)
	assert.Contains(t, err.Error(), "login/submitButton")
}

func TestPersistedValueRoundTrip(t *testing.T) {
	target := el("button", true, "data-test", "submit")
	scope := newFakeContext().on(exprC, target)
	store := newFakeStore().put("login", "submitButton", exprA.String())
	r := newResolver(t, store, locator.Options{AutoUpdate: true})

	healed, err := r.Resolve(context.Background(), scope, locator.Request{
		Key:       loginKey,
		Fallbacks: []locator.Expression{exprB, exprC},
	})
	require.NoError(t, err)
	assert.Equal(t, exprC, healed.Expression)

	persisted := store.value("login", "submitButton")
	assert.Equal(t, "[data-test='submit']", persisted)

	writes := store.writeLog()
	require.Len(t, writes, 1)
	assert.Equal(t,
		"self-healed locator updated from '//button[@id='old-submit']' to '[data-test='submit']'",
		writes[0].comment)

	parsed := locator.ParseChain(persisted)
	require.Len(t, parsed, 1)
	again, err := locator.Resolve(context.Background(), scope, chainOf(parsed...))
	require.NoError(t, err)
	assert.Equal(t, healed.Elements, again.Elements)

	// The corrected value now wins first time.
	res, err := r.Resolve(context.Background(), scope, locator.Request{Key: loginKey})
	require.NoError(t, err)
	assert.True(t, res.WasOriginal())
	assert.Len(t, store.writeLog(), 1)
}

func TestEmptyChainFailsWithoutQuerying(t *testing.T) {
	scope := newFakeContext(el("div", true, "id", "x"))

	_, err := locator.Resolve(context.Background(), scope, nil)
	assert.ErrorIs(t, err, locator.ErrInvalidChain)

	r := newResolver(t, newFakeStore(), locator.Options{Learning: true})
	_, err = r.Resolve(context.Background(), scope, locator.Request{Key: loginKey})
	assert.ErrorIs(t, err, locator.ErrInvalidChain)
	assert.False(t, errors.Is(err, locator.ErrNotFound))

	assert.Equal(t, 0, scope.totalCalls())
}

func TestDescriptionGeneratesFallbacksForEmptyChain(t *testing.T) {
	btn := el("button", true)
	scope := newFakeContext().on(locator.CSS("button"), btn)
	r := newResolver(t, nil, locator.Options{})

	res, err := r.Resolve(context.Background(), scope, locator.Request{Description: "checkout button"})
	require.NoError(t, err)
	assert.Equal(t, locator.CSS("button"), res.Expression)
	assert.Equal(t, locator.OriginGenerated, res.Origin)
	assert.Empty(t, r.Stats().Latest, "anonymous chains are not recorded")
}

func TestLearningFallback(t *testing.T) {
	foo := el("input", true, "id", "foo")
	newScope := func() *fakeContext {
		return newFakeContext(
			el("html", true),
			el("body", true),
			el("div", false, "id", "hidden-panel"),
			foo,
		)
	}

	t.Run("enabled", func(t *testing.T) {
		store := newFakeStore().put("login", "username", exprA.String())
		r := newResolver(t, store, locator.Options{Learning: true, AutoUpdate: true})
		key := locator.Key{Namespace: "login", Name: "username"}

		res, err := r.Resolve(context.Background(), newScope(), locator.Request{Key: key})
		require.NoError(t, err)
		assert.Equal(t, locator.ID("foo"), res.Expression)
		assert.Equal(t, locator.OriginLearned, res.Origin)
		assert.Equal(t, []locator.Element{foo}, res.Elements)
		assert.Equal(t, "foo", store.value("login", "username"))
		assert.Equal(t, 1, r.Stats().HealedCount)
	})

	t.Run("disabled", func(t *testing.T) {
		store := newFakeStore().put("login", "username", exprA.String())
		r := newResolver(t, store, locator.Options{Learning: false, AutoUpdate: true})
		key := locator.Key{Namespace: "login", Name: "username"}

		_, err := r.Resolve(context.Background(), newScope(), locator.Request{Key: key})
		assert.ErrorIs(t, err, locator.ErrNotFound)
		assert.Empty(t, store.writeLog())
	})

	t.Run("disabled per request", func(t *testing.T) {
		r := newResolver(t, nil, locator.Options{Learning: true})
		_, err := r.Resolve(context.Background(), newScope(), locator.Request{
			Fallbacks:       []locator.Expression{exprA},
			DisableLearning: true,
		})
		assert.ErrorIs(t, err, locator.ErrNotFound)
	})

	t.Run("nothing visible", func(t *testing.T) {
		r := newResolver(t, nil, locator.Options{Learning: true})
		scope := newFakeContext(el("div", false, "id", "x"))
		_, err := r.Resolve(context.Background(), scope, locator.Request{Fallbacks: []locator.Expression{exprA}})
		assert.ErrorIs(t, err, locator.ErrNotFound)
	})
}

func TestConcurrentHealingSameKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newFakeStore().put("login", "submitButton", exprA.String())
	r := newResolver(t, store, locator.Options{AutoUpdate: true})
	req := locator.Request{Key: loginKey, Fallbacks: []locator.Expression{exprB, exprC}}

	scopeB := newFakeContext().on(exprB, el("button", true))
	scopeC := newFakeContext().on(exprC, el("button", true))

	g, ctx := errgroup.WithContext(context.Background())
	for _, scope := range []*fakeContext{scopeB, scopeC} {
		scope := scope
		g.Go(func() error {
			_, err := r.Resolve(ctx, scope, req)
			return err
		})
	}
	require.NoError(t, g.Wait())

	writes := store.writeLog()
	require.Len(t, writes, 2)
	assert.Equal(t, writes[1].value, store.value("login", "submitButton"), "last write wins")
	assert.ElementsMatch(t, []string{exprB.String(), exprC.String()}, []string{writes[0].value, writes[1].value})

	assert.ElementsMatch(t, []locator.Expression{exprB, exprC}, r.History(loginKey))
	assert.Equal(t, 1, r.Stats().HealedCount)
}

func TestPersistenceFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	store := newFakeStore().put("login", "submitButton", exprA.String())
	store.setErr = errors.New("disk full")
	r := locator.NewResolver(store, zap.New(core), locator.Options{AutoUpdate: true})

	scope := newFakeContext().on(exprB, el("button", true))
	res, err := r.Resolve(context.Background(), scope, locator.Request{Key: loginKey, Fallbacks: []locator.Expression{exprB}})
	require.NoError(t, err, "persistence failures never fail resolution")
	assert.Equal(t, exprB, res.Expression)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Failed to persist healed locator.", entry.Message)
	assert.Equal(t, "locator", entry.LoggerName)
}

func TestPersistenceGating(t *testing.T) {
	scope := newFakeContext().on(exprB, el("button", true))

	t.Run("auto update off", func(t *testing.T) {
		store := newFakeStore().put("login", "submitButton", exprA.String())
		r := newResolver(t, store, locator.Options{AutoUpdate: false})
		_, err := r.Resolve(context.Background(), scope, locator.Request{Key: loginKey, Fallbacks: []locator.Expression{exprB}})
		require.NoError(t, err)
		assert.Empty(t, store.writeLog())
		assert.Equal(t, 1, r.Stats().HealedCount)
	})

	t.Run("disabled per request", func(t *testing.T) {
		store := newFakeStore().put("login", "submitButton", exprA.String())
		r := newResolver(t, store, locator.Options{AutoUpdate: true})
		_, err := r.Resolve(context.Background(), scope, locator.Request{
			Key: loginKey, Fallbacks: []locator.Expression{exprB}, DisablePersist: true,
		})
		require.NoError(t, err)
		assert.Empty(t, store.writeLog())
	})
}

func TestStoreReadFailureFallsBack(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	r := locator.NewResolver(store, zap.New(core), locator.Options{})

	scope := newFakeContext().on(exprB, el("button", true))
	res, err := r.Resolve(context.Background(), scope, locator.Request{Key: loginKey, Fallbacks: []locator.Expression{exprB}})
	require.NoError(t, err)
	assert.Equal(t, exprB, res.Expression)
	assert.Equal(t, 1, logs.FilterMessage("Failed to read configured locator, continuing without it.").Len())
}

func TestStatsAndClear(t *testing.T) {
	store := newFakeStore().
		put("login", "submitButton", exprA.String()).
		put("login", "title", "//h1")
	r := newResolver(t, store, locator.Options{AutoUpdate: false, Learning: true})
	scope := newFakeContext().on(exprB, el("button", true)).on(locator.XPath("//h1"), el("h1", true))

	_, err := r.Resolve(context.Background(), scope, locator.Request{Key: loginKey, Fallbacks: []locator.Expression{exprB}})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), scope, locator.Request{Key: loginKey, Fallbacks: []locator.Expression{exprB}})
	require.NoError(t, err)
	titleKey := locator.Key{Namespace: "login", Name: "title"}
	_, err = r.Resolve(context.Background(), scope, locator.Request{Key: titleKey})
	require.NoError(t, err)

	st := r.Stats()
	assert.Equal(t, 1, st.HealedCount)
	assert.False(t, st.AutoUpdateEnabled)
	assert.True(t, st.LearningEnabled)
	assert.Len(t, st.Latest, 2)
	assert.Equal(t, []locator.Expression{exprB}, st.History[loginKey.String()])
	assert.True(t, st.Latest[titleKey.String()].WasOriginal)

	// Snapshots are copies.
	st.History[loginKey.String()][0] = exprC
	assert.Equal(t, []locator.Expression{exprB}, r.History(loginKey))

	r.ClearHealingCache()
	st = r.Stats()
	assert.Zero(t, st.HealedCount)
	assert.Empty(t, st.Latest)
	assert.Empty(t, st.History)
}

func TestWasOriginalRequiresConfiguredStep(t *testing.T) {
	t.Run("caller fallback at step 0", func(t *testing.T) {
		store := newFakeStore()
		r := newResolver(t, store, locator.Options{AutoUpdate: true})
		scope := newFakeContext().on(exprB, el("button", true))

		res, err := r.Resolve(context.Background(), scope, locator.Request{Key: loginKey, Fallbacks: []locator.Expression{exprB}})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Index)
		assert.Equal(t, locator.OriginFallback, res.Origin)
		assert.False(t, res.WasOriginal())

		st := r.Stats()
		assert.False(t, st.Latest[loginKey.String()].WasOriginal)
		assert.Equal(t, 1, st.HealedCount)
		assert.Empty(t, store.writeLog(), "step 0 is never written back")
	})

	t.Run("generated selector at step 0", func(t *testing.T) {
		store := newFakeStore()
		r := newResolver(t, store, locator.Options{AutoUpdate: true})
		cartKey := locator.Key{Namespace: "cart", Name: "add"}
		first := locator.GenerateFallbacks("cart button", "")[0]
		scope := newFakeContext().on(first, el("button", true))

		res, err := r.Resolve(context.Background(), scope, locator.Request{Key: cartKey, Description: "cart button"})
		require.NoError(t, err)
		assert.Equal(t, first, res.Expression)
		assert.Equal(t, locator.OriginGenerated, res.Origin)
		assert.Equal(t, 0, res.Index)
		assert.False(t, r.Stats().Latest[cartKey.String()].WasOriginal)
		assert.Empty(t, store.writeLog())
	})
}

func TestLearnedLocatorIsPersistedWithoutAutoUpdate(t *testing.T) {
	key := locator.Key{Namespace: "login", Name: "username"}
	scope := func() *fakeContext { return newFakeContext(el("input", true, "id", "foo")) }

	store := newFakeStore().put("login", "username", exprA.String())
	r := newResolver(t, store, locator.Options{Learning: true, AutoUpdate: false})

	res, err := r.Resolve(context.Background(), scope(), locator.Request{Key: key})
	require.NoError(t, err)
	assert.Equal(t, locator.OriginLearned, res.Origin)
	require.Len(t, store.writeLog(), 1)
	assert.Equal(t, "foo", store.value("login", "username"))

	t.Run("disabled per request", func(t *testing.T) {
		store := newFakeStore().put("login", "username", exprA.String())
		r := newResolver(t, store, locator.Options{Learning: true, AutoUpdate: false})
		_, err := r.Resolve(context.Background(), scope(), locator.Request{Key: key, DisablePersist: true})
		require.NoError(t, err)
		assert.Empty(t, store.writeLog())
	})
}

func TestWinnerThatSplitsOnPipeIsNotPersisted(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	langEN := locator.CSS("[lang|='en']")
	store := newFakeStore().put("login", "submitButton", exprA.String())
	r := locator.NewResolver(store, zap.New(core), locator.Options{AutoUpdate: true})
	scope := newFakeContext().on(langEN, el("html", true, "lang", "en-GB"))

	res, err := r.Resolve(context.Background(), scope, locator.Request{Key: loginKey, Fallbacks: []locator.Expression{langEN}})
	require.NoError(t, err)
	assert.Equal(t, langEN, res.Expression)
	assert.Len(t, locator.ParseChain(langEN.String()), 2, "the stored form would split")

	assert.Empty(t, store.writeLog())
	assert.Equal(t, exprA.String(), store.value("login", "submitButton"))
	assert.Equal(t, 1, logs.FilterMessage("Healed locator does not read back as a single step, not persisting.").Len())
}
