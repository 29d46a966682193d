// Command gen_snapshots_table rewrites the snapshot gallery in the README
// from the integration reference images.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli"
)

const (
	startMarker = "<!-- SNAPSHOTS:START -->"
	endMarker   = "<!-- SNAPSHOTS:END -->"
)

var errNoMarkers = errors.New("gallery markers not found")

func main() {
	app := cli.NewApp()
	app.Name = "gen_snapshots_table"
	app.Usage = "Regenerate the README snapshot gallery"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "readme",
			Usage: "Path to README file to update in place",
			Value: "README.md",
		},
		cli.StringFlag{
			Name:  "snapshots",
			Usage: "Snapshots directory",
			Value: filepath.Join("test", "integration", "testdata", "snapshots"),
		},
		cli.IntFlag{
			Name:  "cols",
			Usage: "Number of columns per row",
			Value: 4,
		},
		cli.IntFlag{
			Name:  "width",
			Usage: "Image width in pixels",
			Value: 160,
		},
	}
	app.Action = func(c *cli.Context) error {
		return run(c.String("readme"), c.String("snapshots"), c.Int("cols"), c.Int("width"))
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error generating snapshot table", "error", err)
		os.Exit(1)
	}
}

func run(readme, snapshots string, cols, width int) error {
	names, err := listSnapshots(snapshots)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(readme)
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", readme, err)
	}
	out, err := splice(string(content), renderTable(names, filepath.ToSlash(snapshots), cols, width))
	if err != nil {
		return fmt.Errorf("%s: %w", readme, err)
	}
	if err := os.WriteFile(readme, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %v", readme, err)
	}
	slog.Info("Updated snapshot gallery", "readme", readme, "snapshots", len(names))
	return nil
}

// listSnapshots returns the reference images in dir, sorted, skipping the
// _actual outputs of failed runs.
func listSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.Contains(name, "_actual.") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".png", ".webp":
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func renderTable(names []string, dir string, cols, width int) string {
	if cols <= 0 {
		cols = 3
	}
	var buf bytes.Buffer
	buf.WriteString("<table>\n")
	for i := 0; i < len(names); i += cols {
		buf.WriteString("  <tr>\n")
		for c := 0; c < cols; c++ {
			if i+c >= len(names) {
				buf.WriteString("    <td></td>\n")
				continue
			}
			name := names[i+c]
			src := path.Join(dir, url.PathEscape(name))
			label := strings.TrimSuffix(name, filepath.Ext(name))
			fmt.Fprintf(&buf, "    <td align=\"center\"><img src=\"%s\" width=\"%d\" /><br><sub>%s</sub></td>\n", src, width, label)
		}
		buf.WriteString("  </tr>\n")
	}
	buf.WriteString("</table>\n")
	return buf.String()
}

// splice replaces everything between the gallery markers with table.
func splice(content, table string) (string, error) {
	start := strings.Index(content, startMarker)
	end := strings.Index(content, endMarker)
	if start == -1 || end == -1 || end < start {
		return "", errNoMarkers
	}
	var out strings.Builder
	out.WriteString(content[:start+len(startMarker)])
	out.WriteString("\n")
	out.WriteString(table)
	after := content[end:]
	if !strings.HasPrefix(after, "\n") && !strings.HasSuffix(table, "\n") {
		out.WriteString("\n")
	}
	out.WriteString(after)
	return out.String(), nil
}
