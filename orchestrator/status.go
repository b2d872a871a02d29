package orchestrator

import (
	"context"

	"voicebridge/core"
	"voicebridge/transport"
)

// CheckStatus reports whether a service answers its liveness probe. The
// result is cached briefly, failures are swallowed into the boolean (a
// restarting service failing its probe is routine, not noteworthy), and
// nothing is logged on failure. When the resolved URL does not answer, the
// candidates are probed in order and the first that does is adopted as the
// service's base URL going forward.
func (o *Orchestrator) CheckStatus(ctx context.Context, service core.Service) bool {
	cacheKey := "status:" + string(service)
	if v, ok := o.cache.Get(cacheKey); ok {
		if alive, ok := v.(bool); ok {
			return alive
		}
	}

	// One queue slot covers the whole probe sequence so a flapping
	// service cannot starve real calls with a burst of candidate probes.
	release, err := o.queue.Admit(ctx)
	if err != nil {
		return false
	}
	defer release()

	probe := func(ctx context.Context, baseURL string) error {
		_, err := o.transport.Call(ctx, baseURL+"/health", transport.Options{Silent: true}, o.cfg.StatusDeadline)
		return err
	}

	_, err = o.resolver.ProbeWithFallback(ctx, service, probe,
		o.resolver.Resolve(service), o.resolver.Candidates(service))
	alive := err == nil

	o.cache.Put(cacheKey, alive)
	return alive
}
