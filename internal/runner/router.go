package runner

import (
	"context"

	"github.com/metorial/auditor/internal/models"
)

// Router sends targets whose IP is listed as local to the local runner and
// everything else to the remote one.
type Router struct {
	local      Runner
	remote     Runner
	localHosts map[string]bool
}

func NewRouter(local, remote Runner, localHosts []string) *Router {
	hosts := make(map[string]bool, len(localHosts))
	for _, h := range localHosts {
		hosts[h] = true
	}
	return &Router{local: local, remote: remote, localHosts: hosts}
}

func (r *Router) pick(t Target) Runner {
	if r.localHosts[t.IP] {
		return r.local
	}
	return r.remote
}

func (r *Router) Run(ctx context.Context, target Target, script string) models.ExecutionResult {
	return r.pick(target).Run(ctx, target, script)
}

func (r *Router) Probe(ctx context.Context, target Target, command string) (string, error) {
	return r.pick(target).Probe(ctx, target, command)
}
