package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/genguard/ast/python"
	"github.com/c360studio/genguard/policy"
	"github.com/c360studio/genguard/validation"
	"github.com/c360studio/genguard/watch"
)

func startWatcher(t *testing.T, root string) <-chan watch.Event {
	t.Helper()
	w, err := watch.New(watch.Config{
		Root: root,
		Validators: map[string]validation.Validator{
			".py":   validation.NewCodeValidator(python.NewParser(), policy.Default()),
			".yaml": validation.NewAgentSpecValidator(),
		},
		DebounceDelay: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	return w.Events()
}

func next(t *testing.T, events <-chan watch.Event) watch.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return watch.Event{}
	}
}

// writeFile replaces path atomically so the watcher never sees partial content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestNew_RequiresValidators(t *testing.T) {
	_, err := watch.New(watch.Config{Root: t.TempDir()})
	assert.Error(t, err)
}

func TestWatcher_ValidatesChangedFiles(t *testing.T) {
	root := t.TempDir()
	events := startWatcher(t, root)

	path := filepath.Join(root, "agent.py")
	writeFile(t, path, "import subprocess\n")

	ev := next(t, events)
	assert.Equal(t, "agent.py", ev.Path)
	assert.Equal(t, watch.OpCreate, ev.Operation)
	require.NotNil(t, ev.Result)
	assert.False(t, ev.Result.Valid())

	writeFile(t, path, "def run():\n    return 1\n")
	ev = next(t, events)
	assert.Equal(t, watch.OpModify, ev.Operation)
	require.NotNil(t, ev.Result)
	assert.True(t, ev.Result.Valid())
}

func TestWatcher_IgnoresOtherExtensions(t *testing.T) {
	root := t.TempDir()
	events := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("eval(x)"), 0o644))
	writeFile(t, filepath.Join(root, "spec.yaml"), "name: a\n")

	ev := next(t, events)
	assert.Equal(t, "spec.yaml", ev.Path)
	require.NotNil(t, ev.Result)
	assert.Equal(t, validation.ScoreCompleteness, ev.Result.ScoreKind)
}

func TestWatcher_Delete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))
	events := startWatcher(t, root)

	require.NoError(t, os.Remove(path))
	ev := next(t, events)
	assert.Equal(t, watch.OpDelete, ev.Operation)
	assert.Nil(t, ev.Result)
}
