package config

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedBackend 未知的去重后端
	ErrUnsupportedBackend = errors.New("unsupported dedup backend")

	// ErrUnknownLogLevel 未知的日志级别
	ErrUnknownLogLevel = errors.New("unknown log level")
)

// ValidationError 配置验证错误
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置验证失败 [%s]: %s", e.Field, e.Message)
}

// Unwrap 允许 errors.Is 匹配底层哨兵错误
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func joinValidationErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
