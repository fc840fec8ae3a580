package sim

import (
	"context"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/internal/muscledb"
)

// instances holds the process-wide simulated hands keyed by name, so a
// session, a script runner and a test addressing "sim://left" all talk to
// the same device.
var instances = hashmap.New[string, *Controller]()

// Shared returns the simulated hand registered under name, creating it with
// cfg on first use. Subsequent calls ignore cfg and return the existing
// instance.
func Shared(name string, cfg *Config, logger *logrus.Logger) *Controller {
	if existing, ok := instances.Get(name); ok {
		return existing
	}
	created, _ := instances.GetOrInsert(name, New(name, cfg, logger))
	return created
}

// Register adds a preconfigured hand to the registry, replacing any previous
// instance with the same name. Used by demos and tests that need non-default
// configs under a fixed address.
func Register(c *Controller) {
	instances.Set(c.name, c)
}

// Unregister removes a hand from the registry. The instance itself is left
// untouched; disconnecting it is the caller's business.
func Unregister(name string) {
	instances.Del(name)
}

// Discoverer enumerates the registered simulated hands.
type Discoverer struct {
	logger *logrus.Logger
}

// NewDiscoverer creates a discoverer over the sim registry.
func NewDiscoverer(logger *logrus.Logger) *Discoverer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Discoverer{logger: logger}
}

// Discover lists registered hands as advertisements, sorted by address for
// stable output.
func (d *Discoverer) Discover(ctx context.Context) ([]hand.Advertisement, error) {
	advs := make([]hand.Advertisement, 0, instances.Len())
	instances.Range(func(name string, c *Controller) bool {
		adv := hand.Advertisement{
			Address:   c.Address(),
			Name:      name,
			Model:     c.cfg.Model,
			LastSeen:  time.Now(),
			Reachable: true,
		}
		if m := muscledb.Lookup(c.cfg.Model); m != nil {
			adv.Model = m.Name
			adv.Muscles = len(m.Muscles)
		}
		advs = append(advs, adv)
		return true
	})

	sort.Slice(advs, func(i, j int) bool { return advs[i].Address < advs[j].Address })

	d.logger.WithField("device_count", len(advs)).Debug("Simulated discovery completed")
	return advs, nil
}
