package gpu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlign4(t *testing.T) {
	require.Equal(t, uint64(0), align4(0))
	require.Equal(t, uint64(4), align4(1))
	require.Equal(t, uint64(4), align4(4))
	require.Equal(t, uint64(32), align4(29))
}

func TestComputePipelineReleaseNil(t *testing.T) {
	var p *ComputePipeline
	p.Release()
	(&ComputePipeline{}).Release()
}
