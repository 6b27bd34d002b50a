package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/v0xg/mppreview/internal/automator/automatortest"
	"github.com/v0xg/mppreview/internal/errs"
)

var indexFixture = automatortest.PageFixture{
	Path:     "/pages/index/index",
	Data:     map[string]any{"motto": "Hello World", "hasUserInfo": false},
	Elements: map[string]int{"view": 6, "text": 4, "button": 2, "image": 1},
}

func newRemotePreviewer(fake *automatortest.MiniProgram, out *bytes.Buffer) *Previewer {
	p := New(Options{Host: fake.Host(), Settle: time.Millisecond, Out: out})
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestRemote_PreviewIndexPage(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := automatortest.NewMiniProgram(indexFixture)
	defer fake.Close()

	dir := filepath.Join(t.TempDir(), "screenshots")
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))

	var out bytes.Buffer
	p := newRemotePreviewer(fake, &out)
	r := p.Preview(context.Background(), Request{PagePath: "/pages/index/index", OutputDir: dir, WSPort: fake.Port()})
	require.True(t, r.Success, r.Error)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, strings.HasPrefix(e.Name(), "_pages_index_index_"), e.Name())
	}

	shot, err := os.ReadFile(r.ScreenshotPath)
	require.NoError(t, err)
	assert.Equal(t, fake.Screenshot(), shot)

	raw, err := os.ReadFile(r.DataPath)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, "/pages/index/index", report.PagePath)
	assert.Equal(t, r.ScreenshotPath, report.ScreenshotPath)
	assert.Equal(t, ElementStats{View: 6, Text: 4, Button: 2, Image: 1, Total: 13}, report.ElementStats)
	assert.JSONEq(t, `{"motto":"Hello World","hasUserInfo":false}`, string(report.PageData))
	_, err = time.Parse(time.RFC3339Nano, report.Timestamp)
	assert.NoError(t, err)

	assert.Equal(t, strings.TrimSuffix(r.ScreenshotPath, ".png"), strings.TrimSuffix(r.DataPath, ".json"))
	assert.Contains(t, out.String(), "→ [1/5] Connecting")
}

func TestRemote_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	var out bytes.Buffer
	p := New(Options{Host: "127.0.0.1", Out: &out})
	r := p.Preview(context.Background(), Request{PagePath: "/pages/index/index", OutputDir: t.TempDir(), WSPort: port})

	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "connection refused")
	assert.Equal(t, errs.ConnectionRefused, r.Kind)
	assert.NotEmpty(t, r.Stack)
	assert.Empty(t, r.ScreenshotPath)
	assert.Contains(t, out.String(), "--auto-port 9420")
}

func TestRemote_BatchOneMissingPage(t *testing.T) {
	fake := automatortest.NewMiniProgram(automatortest.PageFixture{
		Path:     "/a",
		Elements: map[string]int{"view": 1},
	})
	defer fake.Close()

	var out bytes.Buffer
	p := newRemotePreviewer(fake, &out)
	reqs, err := ParseBatch("/a,/b", t.TempDir(), fake.Port())
	require.NoError(t, err)

	report := p.Batch(context.Background(), reqs)
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Success)
	assert.False(t, report.Results[1].Success)
	assert.Contains(t, report.Results[1].Error, "navigate to /b")
	assert.Equal(t, 1, report.SuccessCount())
	assert.Equal(t, 1, report.FailCount())
	assert.Contains(t, out.String(), "Succeeded: 1")
	assert.Contains(t, out.String(), "Failed:    1")
}

func TestRemote_CloseTool(t *testing.T) {
	fake := automatortest.NewMiniProgram(indexFixture)
	defer fake.Close()

	p := New(Options{Host: fake.Host(), CloseTool: true, Out: &bytes.Buffer{}})
	r := p.Preview(context.Background(), Request{PagePath: "/pages/index/index", OutputDir: t.TempDir(), WSPort: fake.Port()})
	require.True(t, r.Success, r.Error)
	assert.Equal(t, 1, fake.Count("Tool.close"))
}
