package flags

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veloir/stagehand/pkg/domain"
)

func TestController_RoundTrip(t *testing.T) {
	c := NewController(domain.FlagSet{
		"useModularPipeline": true,
		UseLLMFallback:       false,
	})

	c.Update(domain.FlagSet{"useModularPipeline": false})

	got := c.Get()
	assert.Equal(t, false, got["useModularPipeline"])
	assert.Equal(t, false, got[UseLLMFallback], "unnamed keys unchanged")
}

func TestController_GetReturnsCopy(t *testing.T) {
	c := NewController(domain.FlagSet{"a": 1})

	got := c.Get()
	got["a"] = 99

	assert.Equal(t, 1, c.Get()["a"], "mutating the copy must not leak back")
}

func TestController_ConcurrentReadsSeeCompleteSets(t *testing.T) {
	c := NewController(domain.FlagSet{"x": 0, "y": 0})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Update(domain.FlagSet{"x": n, "y": n})
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := c.Get()
			// Each update writes matching x and y; a torn read would
			// observe a partial merge.
			assert.Equal(t, got["x"], got["y"])
		}()
	}
	wg.Wait()
}
