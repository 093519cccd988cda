package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// NodeLoader evaluates SSR bundles in a node subprocess. The bundle is
// imported under a file URL carrying the module version as a query token, so
// node's module cache never serves stale code across development imports.
type NodeLoader struct {
	command string
}

// NewNodeLoader creates a loader using the node binary on PATH.
func NewNodeLoader() *NodeLoader {
	return &NodeLoader{command: "node"}
}

// loadScript imports the bundle's default export and prints the observed
// attributes of the element constructor as JSON on stdout.
const loadScript = `
import { pathToFileURL } from "node:url";
const [bundle, version] = process.argv.slice(1);
const url = pathToFileURL(bundle);
url.searchParams.set("v", version);
const mod = await import(url.href);
const ctor = mod.default ?? Object.values(mod)[0];
const attrs = ctor?.observedAttributes ?? [];
process.stdout.write(JSON.stringify({ observedAttributes: attrs }));
`

// Load implements Loader.
func (nl *NodeLoader) Load(ctx context.Context, bundlePath string, version uint64) ([]string, error) {
	if err := nl.validate(bundlePath); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, nl.command,
		"--input-type=module", "-e", loadScript, "--",
		bundlePath, fmt.Sprintf("%d", version))

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("element import timed out: %w", ctx.Err())
		}
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return nil, fmt.Errorf("importing %s: %w\n%s", bundlePath, err, stderr)
	}

	var result struct {
		ObservedAttributes []string `json:"observedAttributes"`
	}
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing import result for %s: %w", bundlePath, err)
	}
	return result.ObservedAttributes, nil
}

// validate rejects bundle paths that could smuggle arguments or escape the
// output tree when handed to the subprocess.
func (nl *NodeLoader) validate(bundlePath string) error {
	if strings.HasPrefix(bundlePath, "-") {
		return fmt.Errorf("invalid bundle path: %s", bundlePath)
	}
	if strings.Contains(filepath.Clean(bundlePath), "..") {
		return fmt.Errorf("bundle path contains traversal: %s", bundlePath)
	}
	return nil
}
