package vfs

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeID indexes a node in the store's arena.
type NodeID uint64

// FileType distinguishes files from directories. Values follow the host
// file-type contract.
type FileType int

const (
	FileTypeFile      FileType = 1
	FileTypeDirectory FileType = 2
)

// String returns the string representation of the FileType
func (t FileType) String() string {
	switch t {
	case FileTypeFile:
		return "file"
	case FileTypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the type by name.
func (t FileType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Permissions is a bitset of node restrictions.
type Permissions uint8

const (
	// PermissionReadonly forbids writing, renaming or deleting the node and,
	// for directories, adding or removing entries.
	PermissionReadonly Permissions = 1 << iota
)

// Readonly reports whether the read-only bit is set.
func (p Permissions) Readonly() bool { return p&PermissionReadonly != 0 }

// String returns "ro" or "rw".
func (p Permissions) String() string {
	if p.Readonly() {
		return "ro"
	}
	return "rw"
}

// Metadata is the result of Stat.
type Metadata struct {
	Name        string      `json:"name" yaml:"name"`
	Type        FileType    `json:"type" yaml:"type"`
	CTime       int64       `json:"ctime" yaml:"ctime"`
	MTime       int64       `json:"mtime" yaml:"mtime"`
	Size        int         `json:"size" yaml:"size"`
	Permissions Permissions `json:"permissions" yaml:"permissions"`
}

// IsDir reports whether the node is a directory.
func (m Metadata) IsDir() bool { return m.Type == FileTypeDirectory }

// ModTime converts MTime to a time.Time.
func (m Metadata) ModTime() time.Time { return time.UnixMilli(m.MTime) }

// DirEntry is one row of ReadDirectory.
type DirEntry struct {
	Name string   `json:"name" yaml:"name"`
	Type FileType `json:"type" yaml:"type"`
}

// node is an arena slot. Only the Store touches nodes, always under its lock.
type node struct {
	id     NodeID
	parent NodeID
	name   string
	typ    FileType
	ctime  int64
	mtime  int64
	perms  Permissions

	data []byte // files only

	entries map[string]NodeID // directories only
	order   []string          // entry names in insertion order
}

func (n *node) isDir() bool { return n.typ == FileTypeDirectory }

func (n *node) metadata() Metadata {
	return Metadata{
		Name:        n.name,
		Type:        n.typ,
		CTime:       n.ctime,
		MTime:       n.mtime,
		Size:        len(n.data),
		Permissions: n.perms,
	}
}

func (n *node) addEntry(name string, id NodeID) {
	n.entries[name] = id
	n.order = append(n.order, name)
}

func (n *node) removeEntry(name string) {
	delete(n.entries, name)
	for i, entry := range n.order {
		if entry == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			return
		}
	}
}

func (n *node) String() string {
	return fmt.Sprintf("%s(%d:%s)", n.typ, n.id, n.name)
}
