package charts

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/stats"
)

func TestCurvePoints(t *testing.T) {
	est, err := stats.NewEstimator(stats.DefaultCurve(), nil)
	require.NoError(t, err)

	points := CurvePoints(est, 10)
	require.Len(t, points, 10)
	assert.Equal(t, "1", points[0].Label)
	assert.InDelta(t, 2500, points[9].Value, 1e-9)

	assert.Len(t, CurvePoints(est, 0), 1)
}

func TestRenderCurve(t *testing.T) {
	est, err := stats.NewEstimator(stats.DefaultCurve(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderCurve(&buf, est, 30, DefaultChartConfig()))
	assert.Contains(t, buf.String(), "echarts")
	assert.Contains(t, buf.String(), "Estimated battle stats by level")
}

func TestBucketRows(t *testing.T) {
	global := aggregate.Global{Buckets: map[bucket.Key]aggregate.BucketAggregate{
		"L1-5__L1-5__C0-9__PEACE":  {Count: 10, WinCount: 5, LossCount: 5},
		"L1-5__L6-10__C0-9__PEACE": {Count: 30, WinCount: 6, LossCount: 24},
		"L6-10__L1-5__C0-9__WAR":   {Count: 20, WinCount: 18, LossCount: 2},
	}}
	local := aggregate.ClientSnapshot{Buckets: map[bucket.Key]aggregate.BucketAggregate{
		"L1-5__L6-10__C0-9__PEACE": {Count: 4, WinCount: 1, LossCount: 3},
	}}

	rows := BucketRows(global, local, 2)
	require.Len(t, rows, 2)
	assert.Equal(t, bucket.Key("L1-5__L6-10__C0-9__PEACE"), rows[0].Key)
	assert.InDelta(t, 0.2, rows[0].GlobalWinRate, 1e-12)
	assert.True(t, rows[0].LocalAvailable)
	assert.InDelta(t, 0.25, rows[0].LocalWinRate, 1e-12)
	assert.False(t, rows[1].LocalAvailable)

	assert.Len(t, BucketRows(global, local, 0), 3)
}

func TestRenderWinRates(t *testing.T) {
	rows := []BucketRow{{Key: "L1-5__L1-5__C0-9__PEACE", Count: 12, GlobalWinRate: 0.5}}

	var buf bytes.Buffer
	require.NoError(t, RenderWinRates(&buf, rows, DefaultChartConfig()))
	assert.Contains(t, buf.String(), "L1-5__L1-5__C0-9__PEACE")

	assert.Error(t, RenderWinRates(&buf, nil, DefaultChartConfig()))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "chart.html")
	require.NoError(t, WriteFile(path, func(w io.Writer) error {
		_, err := w.Write([]byte("<html></html>"))
		return err
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}
