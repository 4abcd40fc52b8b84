package buildlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInfofWarnfErrorfRecordMessages(t *testing.T) {
	ctx := New(nil)
	ctx.Infof("info_code", "hello %d", 1)
	ctx.Warnf("warn_code", "careful")
	ctx.Errorf("err_code", "broken")

	msgs := ctx.Messages()
	assert.Len(t, msgs, 3)
	assert.Equal(t, Info, msgs[0].Level)
	assert.Equal(t, "hello 1", msgs[0].Message)
	assert.Equal(t, Warn, msgs[1].Level)
	assert.Equal(t, Error, msgs[2].Level)
	assert.True(t, ctx.HasErrors())
}

func TestWarnTileAttachesCoordinates(t *testing.T) {
	ctx := New(nil)
	ctx.WarnTile(2, 3, "tile_code", "tile trouble")

	msgs := ctx.Messages()
	require := assert.New(t)
	require.Len(msgs, 1)
	require.NotNil(msgs[0].TileX)
	require.NotNil(msgs[0].TileY)
	require.Equal(int32(2), *msgs[0].TileX)
	require.Equal(int32(3), *msgs[0].TileY)
}

func TestDisabledDropsEverything(t *testing.T) {
	ctx := Disabled()
	ctx.Errorf("x", "should not be recorded")
	assert.Empty(t, ctx.Messages())
	assert.False(t, ctx.HasErrors())
}

func TestStartStopAccumulatesTiming(t *testing.T) {
	ctx := New(nil)
	start := ctx.Start(StageRasterize)
	time.Sleep(time.Millisecond)
	ctx.Stop(StageRasterize, start)

	timings := ctx.Timings()
	require := assert.New(t)
	require.Len(timings, 1)
	require.Equal(string(StageRasterize), timings[0].Name)
	require.Greater(timings[0].DurationMicros, int64(0))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "info", Info.String())
	assert.Equal(t, "warn", Warn.String())
	assert.Equal(t, "error", Error.String())
	assert.Equal(t, "unknown", Level(99).String())
}
