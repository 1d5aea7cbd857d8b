package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logconfig "github.com/weisyn/tonrelay/internal/config/log"
	"github.com/weisyn/tonrelay/pkg/types"
)

// readEntries 读取 JSON 格式的日志文件
func readEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func newFileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "relay.log")
	cfg := logconfig.New(&types.UserLogConfig{
		Level:     types.StringPtr(level),
		FilePath:  types.StringPtr(path),
		ToConsole: types.BoolPtr(false),
	})
	logger, err := New(cfg)
	require.NoError(t, err)
	concrete, ok := logger.(*Logger)
	require.True(t, ok)
	t.Cleanup(func() { _ = concrete.Close() })
	return concrete, path
}

// TestLogger_FileOutput_WritesJSON 文件输出为 JSON 且包含结构化字段
func TestLogger_FileOutput_WritesJSON(t *testing.T) {
	// Arrange
	logger, path := newFileLogger(t, "info")

	// Act
	NewModuleLogger(logger, "relay").With("peers", 3).Info("overlay ready")
	require.NoError(t, logger.Sync())

	// Assert
	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "overlay ready", entries[0]["message"])
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "relay", entries[0]["module"])
	assert.EqualValues(t, 3, entries[0]["peers"])
}

// TestLogger_LevelFilter_DropsDebug 低于配置级别的日志被丢弃
func TestLogger_LevelFilter_DropsDebug(t *testing.T) {
	logger, path := newFileLogger(t, "warn")

	logger.Debug("hidden")
	logger.Infof("hidden %d", 1)
	logger.Warnf("visible %d", 2)
	require.NoError(t, logger.Sync())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible 2", entries[0]["message"])
}

// TestToZapFields_OddArgs_KeepsExtra 奇数个参数不丢失
func TestToZapFields_OddArgs_KeepsExtra(t *testing.T) {
	fields := toZapFields("a", 1, "dangling")

	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Key)
	assert.Equal(t, "extra", fields[1].Key)
}

// TestSetLogger_Nil_Ignored 设置 nil 不会清空全局记录器
func TestSetLogger_Nil_Ignored(t *testing.T) {
	before := GetLogger()
	SetLogger(nil)
	assert.Same(t, before, GetLogger())
}

// TestNewModuleLogger_NilBase_ReturnsNil 基础记录器为空时返回 nil
func TestNewModuleLogger_NilBase_ReturnsNil(t *testing.T) {
	assert.Nil(t, NewModuleLogger(nil, "api"))
}
