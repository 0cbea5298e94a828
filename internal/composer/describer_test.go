package composer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixshop/internal/providers/genai"
)

func TestCachedDescriberCachesPerImage(t *testing.T) {
	inner := &stubDescriber{desc: "a bronze statue"}
	d, err := NewCachedDescriber(inner, 2)
	require.NoError(t, err)
	ctx := context.Background()
	a := genai.ImageInput{Data: []byte("image-a")}
	b := genai.ImageInput{Data: []byte("image-b")}

	for i := 0; i < 3; i++ {
		got, err := d.DescribeImage(ctx, a, false)
		require.NoError(t, err)
		assert.Equal(t, "a bronze statue", got)
	}
	assert.EqualValues(t, 1, inner.calls.Load())

	_, err = d.DescribeImage(ctx, a, true)
	require.NoError(t, err)
	_, err = d.DescribeImage(ctx, b, false)
	require.NoError(t, err)
	assert.EqualValues(t, 3, inner.calls.Load())
	assert.Equal(t, 2, d.Len())
}

func TestCachedDescriberDoesNotCacheErrors(t *testing.T) {
	inner := &stubDescriber{err: errors.New("vision down")}
	d, err := NewCachedDescriber(inner, 0)
	require.NoError(t, err)
	img := genai.ImageInput{Data: []byte("image")}

	_, err = d.DescribeImage(context.Background(), img, false)
	require.Error(t, err)
	_, err = d.DescribeImage(context.Background(), img, false)
	require.Error(t, err)
	assert.EqualValues(t, 2, inner.calls.Load())
	assert.Zero(t, d.Len())
}

type gatedDescriber struct {
	stubDescriber
	release chan struct{}
}

func (g *gatedDescriber) DescribeImage(ctx context.Context, img genai.ImageInput, fast bool) (string, error) {
	<-g.release
	return g.stubDescriber.DescribeImage(ctx, img, fast)
}

func TestCachedDescriberCollapsesConcurrentCalls(t *testing.T) {
	inner := &gatedDescriber{stubDescriber: stubDescriber{desc: "x"}, release: make(chan struct{})}
	d, err := NewCachedDescriber(inner, 4)
	require.NoError(t, err)
	img := genai.ImageInput{Data: []byte("same")}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = d.DescribeImage(context.Background(), img, false)
		}(i)
	}
	close(inner.release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "x", r)
	}
	assert.LessOrEqual(t, inner.calls.Load(), int32(8))
	assert.GreaterOrEqual(t, inner.calls.Load(), int32(1))
	assert.Equal(t, 1, d.Len())
}
