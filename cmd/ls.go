package cmd

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/litterbox/internal/bridge"
	"github.com/conneroisu/litterbox/internal/vfs"
	"github.com/conneroisu/litterbox/internal/watcher"
	"github.com/conneroisu/litterbox/internal/workspace"
)

var (
	lsMirror string
	lsFormat *formatValue
)

var lsCmd = &cobra.Command{
	Use:     "ls [dir]",
	Aliases: []string{"l", "list"},
	Short:   "List the sandbox filesystem",
	Long: `Open a sandbox the way serve does, optionally import a host directory,
and print every node under dir (default /).

Examples:
  litterbox ls
  litterbox ls --mirror ./site -o yaml
  litterbox ls /css -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().StringVar(&lsMirror, "mirror", "", "Host directory to import first")
	lsFormat = addOutputFlag(lsCmd, "table", "json", "yaml")
	AddFlagValidation(lsCmd, "mirror", ValidateDirExists)
}

// nodeInfo is one row of ls output.
type nodeInfo struct {
	Path        string       `json:"path" yaml:"path"`
	Type        vfs.FileType `json:"type" yaml:"-"`
	TypeName    string       `json:"-" yaml:"type"`
	Size        int          `json:"size" yaml:"size"`
	Permissions string       `json:"permissions" yaml:"permissions"`
	Modified    time.Time    `json:"modified" yaml:"modified"`
}

// discardSurface renders nowhere.
type discardSurface struct{}

func (discardSurface) SetDocument(context.Context, string) error        { return nil }
func (discardSurface) PostMessage(context.Context, bridge.Message) error { return nil }

func runLs(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	root := "/"
	if len(args) == 1 {
		root = args[0]
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ws, err := workspace.Open(ctx, discardSurface{}, cfg.WorkspaceOptions(logger))
	if err != nil {
		return err
	}
	defer ws.Close()

	if dir := cmp.Or(lsMirror, cfg.Sandbox.MirrorDir); dir != "" {
		mirror, err := watcher.NewMirror(dir, ws.FS(), watcher.WithLogger(logger))
		if err != nil {
			return err
		}
		if _, err := mirror.Import(ctx); err != nil {
			return fmt.Errorf("importing %s: %w", dir, err)
		}
	}

	nodes, err := collectNodes(ws.FS(), root)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch lsFormat.String() {
	case "json":
		return outputNodesJSON(out, nodes)
	case "yaml":
		return outputNodesYAML(out, nodes)
	default:
		return outputNodesTable(out, nodes)
	}
}

func collectNodes(fs vfs.FileSystem, root string) ([]nodeInfo, error) {
	var nodes []nodeInfo
	err := fs.Walk(root, func(path string, md vfs.Metadata) error {
		if path == "/" {
			return nil
		}
		nodes = append(nodes, nodeInfo{
			Path:        path,
			Type:        md.Type,
			TypeName:    md.Type.String(),
			Size:        md.Size,
			Permissions: md.Permissions.String(),
			Modified:    md.ModTime().UTC(),
		})
		return nil
	})

	return nodes, err
}

func outputNodesJSON(w io.Writer, nodes []nodeInfo) error {
	if nodes == nil {
		nodes = []nodeInfo{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(nodes)
}

func outputNodesYAML(w io.Writer, nodes []nodeInfo) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(nodes)
}

var tableColumns = []string{"path", "type", "size", "permissions", "modified"}

func outputNodesTable(w io.Writer, nodes []nodeInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	upper := cases.Upper(language.English)
	headers := make([]string, len(tableColumns))
	rules := make([]string, len(tableColumns))
	for i, col := range tableColumns {
		headers[i] = upper.String(col)
		rules[i] = strings.Repeat("-", len(col))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Join(rules, "\t"))

	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			n.Path, n.TypeName, n.Size, n.Permissions, n.Modified.Format(time.RFC3339))
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	title := cases.Title(language.English)
	_, err := fmt.Fprintf(w, "\n%d %s\n", len(nodes), title.String(plural(len(nodes), "node")))
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
