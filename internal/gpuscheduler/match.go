package gpuscheduler

import (
	"strings"

	"github.com/danshapiro/openclaw/internal/noderegistry"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// pickNode finds the first connected session advertising system.run that
// satisfies req and is not already running another job. Sessions are tried
// in list order, which in practice is registry map-iteration order; the
// scheduler's FIFO guarantee is about job dispatch order, not which of
// several equally-eligible nodes gets picked.
func pickNode(sessions []noderegistry.Session, req planmodel.Resources, busy map[string]bool) (string, bool) {
	required := req.GPUCount
	if required < 1 {
		required = 1
	}
	for _, s := range sessions {
		if busy[s.NodeID] {
			continue
		}
		if !hasCommand(s.Commands, invokeCommand) {
			continue
		}
		if s.Resources.GPUCount < required {
			continue
		}
		if req.GPUType != "" && !strings.EqualFold(s.Resources.GPUType, req.GPUType) {
			continue
		}
		if req.GPUMemGB > 0 && s.Resources.GPUMemGB < req.GPUMemGB {
			continue
		}
		return s.NodeID, true
	}
	return "", false
}

func hasCommand(commands []string, want string) bool {
	for _, c := range commands {
		if c == want {
			return true
		}
	}
	return false
}
