package devserver

import (
	"fmt"
	"os/exec"

	"github.com/podev-dev/podev/internal/resolve"
)

// LocalApp is the externally-owned server-side module of the podlet. Reload
// re-checks its entry files so a broken edit is caught before the restart
// replaces a working server instance with a crashing one.
type LocalApp struct {
	root    string
	command string
}

// NewLocalApp creates the default local-app collaborator rooted at root.
func NewLocalApp(root string) *LocalApp {
	return &LocalApp{root: root, command: "node"}
}

// Reload implements the reload collaborator contract.
func (a *LocalApp) Reload() error {
	for _, name := range resolve.ServerEntryNames {
		entry := resolve.Resolve(a.root, name)
		if !entry.Exists {
			continue
		}
		cmd := exec.Command(a.command, "--check", entry.Path)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("reloading %s: %w\n%s", entry.Path, err, output)
		}
	}
	return nil
}
