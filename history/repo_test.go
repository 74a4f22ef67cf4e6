package history

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunKeyFormatting(t *testing.T) {
	require.Equal(t, "procguardd:run:42", runKey(42))
	require.Equal(t, "procguardd:run:42", runKeyStr("42"))
}
