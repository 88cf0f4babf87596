package platform

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	require.NoError(t, n.Notify("Prayer Time: Isha", "It's time for Isha prayer at 19:20"))
	assert.Contains(t, buf.String(), `"title":"Prayer Time: Isha"`)
	assert.Contains(t, buf.String(), "It's time for Isha prayer at 19:20")
}
