package cascade

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexp2Matcher(t *testing.T) {
	m := Regexp2Matcher{}

	v, err := m.Find(`total due:\s*(\S+)`, "TOTAL DUE: $1,250.00", 1)
	require.NoError(t, err)
	assert.Equal(t, "$1,250.00", v)

	ok, err := m.Match(`^inv-\d+`, "INV-2024")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Find(`(a)`, "a", 2)
	assert.ErrorIs(t, err, ErrCaptureGroup)
}

func TestRegexp2Matcher_Timeout(t *testing.T) {
	m := Regexp2Matcher{Timeout: 500 * time.Millisecond}
	text := strings.Repeat("a", 40) + "!"

	start := time.Now()
	_, err := m.Match(`^(a+)+$`, text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Less(t, time.Since(start), 10*time.Second)

	_, err = m.Find(`^(a+)+$`, text, 1)
	assert.Error(t, err)
}
