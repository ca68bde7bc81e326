package mesh

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevelMax(t *testing.T) {
	require.NoError(t, ConfigureLogger(LogOptions{Level: "warn"}))
	l, ok := GetLogger().(*defaultLogger)
	require.True(t, ok)
	assert.Equal(t, logrus.WarnLevel, l.Entry.Logger.Level)

	SetLogLevelMax()
	assert.Equal(t, logrus.TraceLevel, l.Entry.Logger.Level)

	// child loggers share the level
	c, ok := GetLogger().ChildLogger(map[string]interface{}{"node": "0x0002"}).(*defaultLogger)
	require.True(t, ok)
	assert.True(t, c.Entry.Logger.IsLevelEnabled(logrus.TraceLevel))

	assert.Error(t, ConfigureLogger(LogOptions{Level: "loud"}))
	require.NoError(t, ConfigureLogger(LogOptions{}))
}
