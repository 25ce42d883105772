package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder collects start/stop calls across components.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) component(name string, startErr, stopErr error) Component {
	return NewComponent(name,
		func(context.Context) error {
			r.add("start " + name)
			return startErr
		},
		func(context.Context) error {
			r.add("stop " + name)
			return stopErr
		},
	)
}

func composerOf(cs ...Component) Composer {
	return func(_ context.Context, reg *Register) error {
		for _, c := range cs {
			if err := reg.Add(c); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestRuntime_BootAndTerminate(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	var levels []Level

	rt := New(zap.NewNop(), NewHostingEnvironment("backoffice", "test", true),
		WithComposers(
			composerOf(rec.component("database", nil, nil), rec.component("sessions", nil, nil)),
			composerOf(rec.component("providers", nil, nil)),
		),
		WithLevelObserver(func(l Level) { levels = append(levels, l) }),
	)
	assert.Equal(t, LevelUnknown, rt.Level())
	assert.Equal(t, "backoffice", rt.Host().ApplicationName)

	ctx := context.Background()
	reg := NewRegister()
	require.NoError(t, rt.Configure(ctx, reg))
	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, LevelBoot, rt.Level())

	require.NoError(t, rt.Start(ctx))
	assert.Equal(t, LevelRun, rt.Level())

	require.NoError(t, rt.Terminate(ctx))
	assert.Equal(t, LevelTerminated, rt.Level())
	require.NoError(t, rt.Terminate(ctx), "terminate is idempotent")

	assert.Equal(t, []string{
		"start database", "start sessions", "start providers",
		"stop providers", "stop sessions", "stop database",
	}, rec.calls)
	assert.Equal(t, []Level{LevelBoot, LevelRun, LevelTerminated}, levels)

	rt.Dispose()
	assert.ErrorIs(t, rt.Start(ctx), ErrInvalidState)
}

func TestRuntime_StartFailureRollsBack(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	boom := errors.New("boom")

	rt := New(zap.NewNop(), nil, WithComposers(composerOf(
		rec.component("database", nil, nil),
		rec.component("sessions", boom, nil),
		rec.component("providers", nil, nil),
	)))

	ctx := context.Background()
	require.NoError(t, rt.Configure(ctx, NewRegister()))

	err := rt.Start(ctx)
	require.ErrorIs(t, err, boom)

	var bootErr *BootFailedError
	require.ErrorAs(t, err, &bootErr)
	assert.Equal(t, "sessions", bootErr.Stage)
	assert.Equal(t, LevelBootFailed, rt.Level())

	assert.Equal(t, []string{"start database", "start sessions", "stop database"}, rec.calls)

	// nothing left to stop
	require.NoError(t, rt.Terminate(ctx))
	assert.Len(t, rec.calls, 3)
}

func TestRuntime_ComposerFailure(t *testing.T) {
	t.Parallel()

	bad := errors.New("bad config")
	rt := New(zap.NewNop(), nil, WithComposers(func(context.Context, *Register) error { return bad }))

	err := rt.Configure(context.Background(), NewRegister())
	require.ErrorIs(t, err, bad)
	assert.Equal(t, LevelBootFailed, rt.Level())

	assert.ErrorIs(t, rt.Configure(context.Background(), NewRegister()), ErrInvalidState)
}

func TestRuntime_TerminateJoinsStopErrors(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	e1, e2 := errors.New("e1"), errors.New("e2")
	rt := New(zap.NewNop(), nil, WithComposers(composerOf(
		rec.component("a", nil, e1),
		rec.component("b", nil, nil),
		rec.component("c", nil, e2),
	)))

	ctx := context.Background()
	require.NoError(t, rt.Configure(ctx, NewRegister()))
	require.NoError(t, rt.Start(ctx))

	err := rt.Terminate(ctx)
	require.ErrorIs(t, err, e1)
	require.ErrorIs(t, err, e2)
	assert.Equal(t, []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}, rec.calls)
	assert.Equal(t, LevelTerminated, rt.Level())
}

func TestRuntime_StartBeforeConfigure(t *testing.T) {
	t.Parallel()

	rt := New(zap.NewNop(), nil)
	assert.ErrorIs(t, rt.Start(context.Background()), ErrInvalidState)
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	reg := NewRegister()
	require.NoError(t, reg.Add(NewComponent("a", nil, nil)))
	require.ErrorIs(t, reg.Add(NewComponent("a", nil, nil)), ErrDuplicateComponent)
	assert.Equal(t, 1, reg.Len())

	c := reg.Components()[0]
	assert.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.Stop(context.Background()))
}

func TestLevel_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown", LevelUnknown.String())
	assert.Equal(t, "boot", LevelBoot.String())
	assert.Equal(t, "boot_failed", LevelBootFailed.String())
	assert.Equal(t, "run", LevelRun.String())
	assert.Equal(t, "terminated", LevelTerminated.String())
}
