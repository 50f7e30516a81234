package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/litterbox/internal/errors"
)

func TestClean(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"//", "/"},
		{"/a/b/", "/a/b"},
		{"/a//b", "/a/b"},
		{"/a/./b", "/a/./b"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Clean(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Clean("a/b")
	assert.ErrorIs(t, err, errors.ErrFileNotFound)
}

func TestDirBaseJoin(t *testing.T) {
	assert.Equal(t, "/", Dir("/a"))
	assert.Equal(t, "/a", Dir("/a/b/"))
	assert.Equal(t, "/", Dir("/"))
	assert.Equal(t, "b", Base("/a/b"))
	assert.Equal(t, "/", Base("/"))
	assert.Equal(t, "/a/b/c", Join("/a", "b/c"))
	assert.Equal(t, "/x", Join("/", "x"))
}

func TestURIRoundTrip(t *testing.T) {
	p, err := ParseURI("sandbox:/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "/file.txt", p)

	p, err = ParseURI("sandbox:///dir/index.html")
	require.NoError(t, err)
	assert.Equal(t, "/dir/index.html", p)

	_, err = ParseURI("file:///etc/passwd")
	assert.Error(t, err)

	assert.Equal(t, "sandbox:/dir/index.html", FormatURI("/dir//index.html"))
	assert.Equal(t, "sandbox:/", FormatURI("/"))
}
