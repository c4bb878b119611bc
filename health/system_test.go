package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSystemHealthCheckPassesUnderNormalLoad(t *testing.T) {
	require.NoError(t, SystemHealthCheck()(context.Background()))
}
