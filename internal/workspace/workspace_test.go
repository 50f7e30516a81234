package workspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/litterbox/internal/bridge"
	"github.com/conneroisu/litterbox/internal/errors"
	"github.com/conneroisu/litterbox/internal/vfs"
)

type recordingSurface struct {
	mu        sync.Mutex
	documents []string
	messages  []bridge.Message
}

func (r *recordingSurface) SetDocument(_ context.Context, html string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append(r.documents, html)
	return nil
}

func (r *recordingSurface) PostMessage(_ context.Context, msg bridge.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingSurface) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.documents), len(r.messages)
}

func (r *recordingSurface) lastDocument() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.documents) == 0 {
		return ""
	}
	return r.documents[len(r.documents)-1]
}

func openTest(t *testing.T, mutate func(*Options)) (*Workspace, *recordingSurface) {
	t.Helper()
	opts := DefaultOptions()
	opts.QuietPeriod = time.Hour
	opts.FlushQuantum = time.Hour
	if mutate != nil {
		mutate(&opts)
	}

	surface := &recordingSurface{}
	ws, err := Open(context.Background(), surface, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	return ws, surface
}

var overwrite = vfs.WriteOptions{Create: true, Overwrite: true}

func TestOpenSeedsAndRendersOnce(t *testing.T) {
	ws, surface := openTest(t, nil)

	for path, want := range map[string]string{
		"/index.html": StarterMarkup,
		"/style.css":  StarterStyle,
		"/script.js":  StarterScript,
		"/file.txt":   ScratchContent,
	} {
		data, err := ws.FS().ReadFile(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, string(data), path)
	}

	docs, msgs := surface.counts()
	assert.Equal(t, 1, docs)
	assert.Equal(t, 0, msgs)
	assert.Contains(t, surface.lastDocument(), "Hello, litterbox")

	ws.Flush()
	docs, msgs = surface.counts()
	assert.Equal(t, 1, docs, "seed events are covered by the initial render")
	assert.Equal(t, 0, msgs)
}

func TestOpenWithoutSeed(t *testing.T) {
	ws, surface := openTest(t, func(o *Options) { o.Seed = false })

	entries, err := ws.FS().ReadDirectory("/")
	require.NoError(t, err)
	assert.Empty(t, entries)

	docs, _ := surface.counts()
	assert.Equal(t, 1, docs)
	assert.True(t, ws.Session().Built())
}

func TestMarkupChangeRebuilds(t *testing.T) {
	ws, surface := openTest(t, nil)

	require.NoError(t, ws.FS().WriteFile("/index.html", []byte("<p>one</p>"), overwrite))
	require.NoError(t, ws.FS().WriteFile("/index.html", []byte("<p>two</p>"), overwrite))
	ws.Flush()

	docs, msgs := surface.counts()
	assert.Equal(t, 2, docs, "a burst of writes rebuilds once")
	assert.Equal(t, 0, msgs)
	assert.Contains(t, surface.lastDocument(), "<p>two</p>")
	assert.NotContains(t, surface.lastDocument(), "<p>one</p>")
}

func TestStyleChangePatches(t *testing.T) {
	ws, surface := openTest(t, nil)

	require.NoError(t, ws.FS().WriteFile("/style.css", []byte("p{color:red}"), overwrite))
	ws.Flush()

	docs, msgs := surface.counts()
	assert.Equal(t, 1, docs)
	require.Equal(t, 1, msgs)
	assert.Equal(t, bridge.Message{Command: bridge.CommandSetCSS, Value: "p{color:red}"}, surface.messages[0])
	assert.Equal(t, "p{color:red}", ws.Session().State().Style)
}

func TestDeletingDocumentEmptiesStream(t *testing.T) {
	ws, _ := openTest(t, nil)

	require.NoError(t, ws.FS().Delete("/script.js", vfs.DeleteOptions{}))
	ws.Flush()

	assert.Equal(t, "", ws.Session().State().Script)
	assert.NotContains(t, ws.Session().Document().HTML, "sandbox ready")
}

func TestRenamingDocumentAway(t *testing.T) {
	ws, _ := openTest(t, nil)

	require.NoError(t, ws.FS().Rename("/index.html", "/old.html", vfs.RenameOptions{}))
	ws.Flush()
	assert.Equal(t, "", ws.Session().State().Markup)

	require.NoError(t, ws.FS().Rename("/old.html", "/index.html", vfs.RenameOptions{}))
	ws.Flush()
	assert.Equal(t, StarterMarkup, ws.Session().State().Markup)
}

func TestDeletingParentDirectoryEmptiesNestedDocument(t *testing.T) {
	ws, _ := openTest(t, func(o *Options) { o.MarkupFile = "/site/index.html" })
	require.Contains(t, ws.Session().State().Markup, "Hello, litterbox")

	require.NoError(t, ws.FS().Delete("/site", vfs.DeleteOptions{Recursive: true}))
	ws.Flush()

	_, err := ws.FS().Stat("/site/index.html")
	require.ErrorIs(t, err, errors.ErrFileNotFound)
	assert.Equal(t, "", ws.Session().State().Markup)
	assert.NotContains(t, ws.Session().Document().HTML, "Hello, litterbox")
}

func TestRenamingDirectoryOntoNestedDocument(t *testing.T) {
	ws, _ := openTest(t, func(o *Options) {
		o.MarkupFile = "/site/index.html"
		o.StyleFile = "/site/css/style.css"
	})

	require.NoError(t, ws.FS().CreateDirectory("/other"))
	require.NoError(t, ws.FS().WriteFile("/other/index.html", []byte("<p>NEW</p>"), overwrite))
	require.NoError(t, ws.FS().Rename("/other", "/site", vfs.RenameOptions{Overwrite: true}))
	ws.Flush()

	state := ws.Session().State()
	assert.Contains(t, state.Markup, "NEW")
	assert.Equal(t, "", state.Style, "the replaced subtree took the style file with it")
	assert.Contains(t, ws.Session().Document().HTML, "<p>NEW</p>")
}

func TestIsAncestor(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/", "/index.html", true},
		{"/site", "/site/index.html", true},
		{"/site", "/site/css/style.css", true},
		{"/site", "/site", false},
		{"/si", "/site/index.html", false},
		{"/site/index.html", "/site", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isAncestor(tt.dir, tt.path), "%s under %s", tt.path, tt.dir)
	}
}

func TestUnrelatedFilesDoNotTouchThePreview(t *testing.T) {
	ws, surface := openTest(t, nil)

	require.NoError(t, ws.FS().WriteFile("/notes.md", []byte("# notes"), overwrite))
	require.NoError(t, ws.FS().CreateDirectory("/assets"))
	ws.Flush()

	docs, msgs := surface.counts()
	assert.Equal(t, 1, docs)
	assert.Equal(t, 0, msgs)
}

func TestSeedKeepsExistingFiles(t *testing.T) {
	ws, _ := openTest(t, nil)
	require.NoError(t, ws.FS().WriteFile("/index.html", []byte("<p>mine</p>"), overwrite))

	ws.Seed(context.Background())

	data, err := ws.FS().ReadFile("/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>mine</p>", string(data))
}

func TestSeedFailuresAreSkipped(t *testing.T) {
	ws, _ := openTest(t, func(o *Options) {
		o.Seed = false
		o.MarkupFile = "/site/index.html"
		o.ScratchFile = "/scratch/file.txt"
	})
	require.NoError(t, ws.FS().WriteFile("/scratch", []byte("a file, not a directory"), overwrite))

	ws.Seed(context.Background())

	_, err := ws.FS().Stat("/scratch/file.txt")
	assert.ErrorIs(t, err, errors.ErrFileNotFound)

	data, err := ws.FS().ReadFile("/site/index.html")
	require.NoError(t, err, "nested document paths get their directories created")
	assert.Equal(t, StarterMarkup, string(data))

	_, err = ws.FS().ReadFile("/style.css")
	assert.NoError(t, err, "one failed seed does not stop the rest")
}

func TestDebouncedUpdateFiresOnItsOwn(t *testing.T) {
	ws, surface := openTest(t, func(o *Options) {
		o.QuietPeriod = 20 * time.Millisecond
		o.FlushQuantum = time.Millisecond
	})

	require.NoError(t, ws.FS().WriteFile("/script.js", []byte("tick()"), overwrite))

	require.Eventually(t, func() bool {
		docs, _ := surface.counts()
		return docs == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, surface.lastDocument(), "tick()")
}

func TestOpenRejectsInvalidOptions(t *testing.T) {
	surface := &recordingSurface{}

	opts := DefaultOptions()
	opts.MarkupFile = "index.html"
	_, err := Open(context.Background(), surface, opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.StyleFile = "/index.html"
	_, err = Open(context.Background(), surface, opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.QuietPeriod = -time.Second
	_, err = Open(context.Background(), surface, opts)
	assert.Error(t, err)
}

func TestStreamString(t *testing.T) {
	assert.Equal(t, "markup", StreamMarkup.String())
	assert.Equal(t, "style", StreamStyle.String())
	assert.Equal(t, "script", StreamScript.String())
	assert.Equal(t, "unknown", Stream(9).String())
}
