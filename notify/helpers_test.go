package notify

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
