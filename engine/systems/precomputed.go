package systems

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/engine/renderer/device"
	"github.com/spaghettifunk/maple/engine/resources"
)

const (
	LookupTextureSize uint32 = 64
	BlueNoiseSize     uint32 = 128
	BlueNoiseSeed     uint64 = 0x5eed
)

/**
 * @brief The lookup textures of the lighting pass, generated on the job system.
 * Images are uploaded lazily on the goroutine calling Get.
 */
type PrecomputedSet struct {
	device  device.Device
	futures map[string]*Future[*resources.Image]
	failed  map[string]bool
}

func NewPrecomputedSet(js *JobSystem, dev device.Device) *PrecomputedSet {
	generators := map[string]func() (*resources.Image, error){
		resources.LookupBRDF: func() (*resources.Image, error) {
			return resources.GenerateBRDFLUT(LookupTextureSize)
		},
		resources.LookupLTC1: func() (*resources.Image, error) {
			return resources.GenerateLTC1(LookupTextureSize)
		},
		resources.LookupLTC2: func() (*resources.Image, error) {
			return resources.GenerateLTC2(LookupTextureSize)
		},
		resources.LookupBlueNoise: func() (*resources.Image, error) {
			return resources.GenerateBlueNoise(BlueNoiseSize, BlueNoiseSeed)
		},
	}
	ps := &PrecomputedSet{
		device:  dev,
		futures: make(map[string]*Future[*resources.Image], len(generators)),
		failed:  make(map[string]bool),
	}
	for name, gen := range generators {
		ps.futures[name] = Go(js, name, gen)
	}
	return ps
}

// Names returns the lookup names in a stable order.
func (ps *PrecomputedSet) Names() []string {
	names := make([]string, 0, len(ps.futures))
	for name := range ps.futures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the uploaded image once its job finished. It never blocks on the job.
func (ps *PrecomputedSet) Get(name string) (*resources.Image, bool) {
	f, ok := ps.futures[name]
	if !ok {
		return nil, false
	}
	img, ready, err := f.Poll()
	if !ready {
		return nil, false
	}
	if err != nil {
		if !ps.failed[name] {
			ps.failed[name] = true
			core.LogError("lookup texture '%s' could not be generated: %s", name, err)
		}
		return nil, false
	}
	if err := img.Upload(ps.device); err != nil {
		core.LogError("lookup texture '%s' could not be uploaded: %s", name, err)
		return nil, false
	}
	return img, true
}

// Ready reports whether every lookup is available without waiting.
func (ps *PrecomputedSet) Ready() bool {
	for name := range ps.futures {
		if _, ok := ps.Get(name); !ok {
			return false
		}
	}
	return true
}

// Wait blocks until every generation job finished. The first failure is returned.
func (ps *PrecomputedSet) Wait(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, f := range ps.futures {
		g.Go(func() error {
			if _, err := f.Wait(ctx); err != nil {
				return fmt.Errorf("lookup texture '%s': %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (ps *PrecomputedSet) Destroy() {
	for _, f := range ps.futures {
		if img, ready, err := f.Poll(); ready && err == nil && img.Handle != nil {
			img.Handle.Destroy()
			img.Handle = nil
		}
	}
}
