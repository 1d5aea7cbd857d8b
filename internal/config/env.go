package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/weisyn/tonrelay/pkg/types"
)

// DefaultEnvFile 未显式指定时尝试加载的 env 文件
const DefaultEnvFile = ".env"

// LoadAppConfig 从环境变量加载用户配置
//
// 加载顺序：
//  1. envFile 中的变量（不覆盖进程中已存在的变量）
//  2. 进程环境变量
//
// envFile 为空时尝试 .env，文件不存在不视为错误；
// 显式指定的文件不存在则返回错误。
func LoadAppConfig(envFile string) (*types.AppConfig, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}

	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := &types.AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
