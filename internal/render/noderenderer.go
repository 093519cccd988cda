package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/podev-dev/podev/internal/registry"
)

// NodeRenderer is the default ServerRenderer: it evaluates the element's SSR
// bundle in a node subprocess and captures the produced markup. The bundle is
// imported under the definition's module version so a hot-swapped element
// never renders through a cached module instance.
type NodeRenderer struct {
	command string
}

// NewNodeRenderer creates a renderer using the node binary on PATH.
func NewNodeRenderer() *NodeRenderer {
	return &NodeRenderer{command: "node"}
}

// renderScript imports the bundle and renders its element with the given
// attributes, writing markup to stdout. The bundle's render export is the
// external rendering primitive; its absence is an error.
const renderScript = `
import { pathToFileURL } from "node:url";
const [bundle, version, tag, attrsJSON] = process.argv.slice(1);
const url = pathToFileURL(bundle);
url.searchParams.set("v", version);
const mod = await import(url.href);
if (typeof mod.render !== "function") {
	process.stderr.write("bundle has no render export");
	process.exit(1);
}
const markup = await mod.render(tag, JSON.parse(attrsJSON));
process.stdout.write(markup);
`

// Render implements ServerRenderer.
func (nr *NodeRenderer) Render(ctx context.Context, def *registry.ElementDefinition, attrs map[string]string) (string, error) {
	if strings.HasPrefix(def.BundlePath, "-") || strings.Contains(filepath.Clean(def.BundlePath), "..") {
		return "", fmt.Errorf("invalid bundle path: %s", def.BundlePath)
	}

	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, nr.command,
		"--input-type=module", "-e", renderScript, "--",
		def.BundlePath, fmt.Sprintf("%d", def.Version), def.Tag, string(attrsJSON))

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("server render timed out: %w", ctx.Err())
		}
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return "", fmt.Errorf("rendering %s: %w\n%s", def.Tag, err, stderr)
	}

	return string(output), nil
}
