package types

import "time"

// StringPtr 返回字符串指针，用于构造用户配置
func StringPtr(s string) *string { return &s }

// BoolPtr 返回布尔指针
func BoolPtr(b bool) *bool { return &b }

// IntPtr 返回整数指针
func IntPtr(i int) *int { return &i }

// Int32Ptr 返回 int32 指针
func Int32Ptr(i int32) *int32 { return &i }

// DurationPtr 返回时长指针
func DurationPtr(d time.Duration) *time.Duration { return &d }
