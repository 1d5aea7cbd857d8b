// Package runtime 进程级运行时调优
package runtime

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
)

// DefaultReserveRatio 堆上限占 cgroup 内存上限的比例，其余留给网络栈与原生内存
const DefaultReserveRatio = 0.8

// unlimitedThreshold 超过该值的上限视为未限制
const unlimitedThreshold = 1 << 60

// cgroupLimitFiles 依次尝试 cgroup v2 与 v1（相对根目录）
var cgroupLimitFiles = []string{
	"sys/fs/cgroup/memory.max",
	"sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// CgroupMemoryLimit 读取容器内存上限，ok=false 表示未限制或不在容器中
func CgroupMemoryLimit(fsys fs.FS) (limit uint64, ok bool, err error) {
	for _, name := range cgroupLimitFiles {
		data, err := fs.ReadFile(fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("read %s: %w", name, err)
		}

		s := strings.TrimSpace(string(data))
		if s == "" || s == "max" {
			return 0, false, nil
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("parse %s: %w", name, err)
		}
		if v > unlimitedThreshold {
			return 0, false, nil
		}
		return v, true, nil
	}
	return 0, false, nil
}

// MemoryLimitTarget 按比例计算 Go 堆上限；GOMEMLIMIT 已设置或未检测到上限时返回 0
func MemoryLimitTarget(fsys fs.FS, ratio float64) (target int64, limit uint64, err error) {
	if os.Getenv("GOMEMLIMIT") != "" {
		return 0, 0, nil
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = DefaultReserveRatio
	}
	limit, ok, err := CgroupMemoryLimit(fsys)
	if err != nil || !ok {
		return 0, limit, err
	}
	return int64(float64(limit) * ratio), limit, nil
}

// ApplyMemoryLimit 在容器中按 cgroup 上限设置 debug.SetMemoryLimit，返回设置的值（0 表示未设置）
func ApplyMemoryLimit(ratio float64) (target int64, limit uint64, err error) {
	target, limit, err = MemoryLimitTarget(os.DirFS("/"), ratio)
	if err != nil || target <= 0 {
		return 0, limit, err
	}
	debug.SetMemoryLimit(target)
	return target, limit, nil
}
