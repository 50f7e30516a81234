//go:build property

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var fileSystemConstructors = []struct {
	sentinel *Error
	build    func(path string) *Error
}{
	{ErrFileNotFound, FileNotFound},
	{ErrFileExists, FileExists},
	{ErrFileIsADirectory, FileIsADirectory},
	{ErrFileNotADirectory, FileNotADirectory},
	{ErrNoPermissions, func(path string) *Error { return NoPermissions(path, "") }},
}

// TestErrorIdentityProperties checks that errors match by type and code only.
func TestErrorIdentityProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("an error matches its own sentinel whatever the path", prop.ForAll(
		func(i int, path string) bool {
			c := fileSystemConstructors[i]
			return errors.Is(c.build(path), c.sentinel)
		},
		gen.IntRange(0, len(fileSystemConstructors)-1),
		gen.AnyString(),
	))

	properties.Property("an error never matches another sentinel", prop.ForAll(
		func(i, j int, path string) bool {
			if i == j {
				return true
			}
			return !errors.Is(fileSystemConstructors[i].build(path), fileSystemConstructors[j].sentinel)
		},
		gen.IntRange(0, len(fileSystemConstructors)-1),
		gen.IntRange(0, len(fileSystemConstructors)-1),
		gen.AnyString(),
	))

	properties.Property("wrapping preserves identity and code", prop.ForAll(
		func(i, depth int, path string) bool {
			c := fileSystemConstructors[i]
			var err error = c.build(path)
			for d := 0; d < depth; d++ {
				err = fmt.Errorf("layer %d: %w", d, err)
			}
			return errors.Is(err, c.sentinel) &&
				CodeOf(err) == c.sentinel.Code &&
				IsFileSystemError(err)
		},
		gen.IntRange(0, len(fileSystemConstructors)-1),
		gen.IntRange(0, 5),
		gen.AnyString(),
	))

	properties.Property("the path is kept on the error", prop.ForAll(
		func(i int, path string) bool {
			return fileSystemConstructors[i].build(path).Path == path
		},
		gen.IntRange(0, len(fileSystemConstructors)-1),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
