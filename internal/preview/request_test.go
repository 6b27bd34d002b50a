package preview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/mppreview/internal/errs"
)

func TestNewRequest(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "valid", path: "/pages/index/index"},
		{name: "with query", path: "/pages/detail/detail?id=7"},
		{name: "empty", path: "", wantErr: true},
		{name: "relative", path: "pages/index/index", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(tt.path, "./out", 9420)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Request{PagePath: tt.path, OutputDir: "./out", WSPort: 9420}, req)
		})
	}
}

func TestParseBatch(t *testing.T) {
	reqs, err := ParseBatch("/pages/index/index, /pages/list/list ,/pages/detail/detail", "./out", 9420)
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, "/pages/index/index", reqs[0].PagePath)
	assert.Equal(t, "/pages/list/list", reqs[1].PagePath)
	assert.Equal(t, "/pages/detail/detail", reqs[2].PagePath)

	_, err = ParseBatch("/a,,/b", "./out", 9420)
	assert.Error(t, err)

	_, err = ParseBatch("/a,b", "./out", 9420)
	assert.Error(t, err)
}

func TestIsBatch(t *testing.T) {
	assert.True(t, IsBatch("/a,/b"))
	assert.False(t, IsBatch("/pages/index/index"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "_pages_index_index", Sanitize("/pages/index/index"))
	assert.Equal(t, "_a", Sanitize("/a"))
	assert.Equal(t, Sanitize("/pages/x"), Sanitize("/pages/x"))
}

func TestNamer_Monotonic(t *testing.T) {
	clock := time.UnixMilli(1000)
	n := NewNamer(func() time.Time { return clock })

	assert.Equal(t, "_a_1000", n.Name("/a"))
	assert.Equal(t, "_a_1001", n.Name("/a"))

	clock = time.UnixMilli(900)
	assert.Equal(t, "_b_1002", n.Name("/b"))

	clock = time.UnixMilli(5000)
	assert.Equal(t, "_b_5000", n.Name("/b"))
}

func TestNewElementStats(t *testing.T) {
	s := NewElementStats(1, 2, 3, 4)
	assert.Equal(t, 10, s.Total)
	assert.Equal(t, s.View+s.Text+s.Button+s.Image, s.Total)
	assert.Zero(t, NewElementStats(0, 0, 0, 0).Total)
}

func TestNewReport_NullData(t *testing.T) {
	r := NewReport(time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CST", 8*3600)), "/a", "x.png", nil, ElementStats{})
	assert.Equal(t, "2024-01-01T19:04:05.000Z", r.Timestamp)
	assert.Equal(t, "null", string(r.PageData))
}
