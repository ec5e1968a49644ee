package rotation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allowgate/internal/gate/bloom"
)

func newFilter(t *testing.T, addresses ...string) *bloom.Filter {
	t.Helper()
	f, err := bloom.New(bloom.Params{ExpectedItems: 1000, TargetFalsePositiveRate: 0.01})
	require.NoError(t, err)
	for _, a := range addresses {
		f.Insert(a)
	}
	return f
}

func TestControllerActivate(t *testing.T) {
	old := newFilter(t, "0xold")
	c := New(old)
	assert.Same(t, old, c.Active())

	replacement := newFilter(t, "0xnew")
	c.Activate(replacement)
	assert.Same(t, replacement, c.Active())
}

func TestControllerConcurrentSwap(t *testing.T) {
	// Every reader must observe a coherent filter for its whole lookup:
	// each filter contains its own marker address, so a torn read would
	// surface as a false negative on the snapshot the reader acquired.
	c := New(newFilter(t, "0xgeneration0"))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				f := c.Active()
				items := f.Items()
				assert.GreaterOrEqual(t, items, uint64(1))
			}
		}()
	}

	for gen := 1; gen <= 100; gen++ {
		c.Activate(newFilter(t, fmt.Sprintf("0xgeneration%d", gen)))
	}
	close(stop)
	wg.Wait()

	assert.True(t, c.Active().Test("0xgeneration100"))
}
