package vfs

import (
	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/notify"
)

// FileSystem is the operation surface the host glue consumes.
type FileSystem interface {
	Stat(path string) (Metadata, error)
	ReadDirectory(path string) ([]DirEntry, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte, opts WriteOptions) error
	Rename(oldPath, newPath string, opts RenameOptions) error
	Delete(path string, opts DeleteOptions) error
	CreateDirectory(path string) error
	SetPermissions(path string, perms Permissions) error
	Walk(root string, fn WalkFunc) error
	Watch(path string, recursive bool) *notify.Watch
}

// Provider pairs a Store with the bus it emits into.
type Provider struct {
	*Store
	bus *notify.Bus
}

var _ FileSystem = (*Provider)(nil)

// NewProvider creates an empty store wired to bus.
func NewProvider(bus *notify.Bus, logger logging.Logger) *Provider {
	return &Provider{
		Store: NewStore(WithEmitter(bus), WithLogger(logger)),
		bus:   bus,
	}
}

// Watch registers a watch scope on the provider's bus. Watching a path that
// does not exist yet is allowed.
func (p *Provider) Watch(path string, recursive bool) *notify.Watch {
	return p.bus.Watch(path, recursive)
}

// Bus returns the bus change events are emitted into.
func (p *Provider) Bus() *notify.Bus {
	return p.bus
}
