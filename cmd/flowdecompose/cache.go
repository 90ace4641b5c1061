package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/analyzer"
	"github.com/wyxpro/CubeAI-FlowDecompose/config"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/cache"
)

// cacheConfig 由 redis 与 analyzer 配置段组装应答缓存配置
func cacheConfig(cfg *config.Config) cache.Config {
	cc := cache.DefaultConfig()
	cc.Addr = cfg.Redis.Addr
	cc.Password = cfg.Redis.Password
	cc.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		cc.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.MinIdleConns > 0 {
		cc.MinIdleConns = cfg.Redis.MinIdleConns
	}
	if cfg.Analyzer.CacheTTL > 0 {
		cc.DefaultTTL = cfg.Analyzer.CacheTTL
	}
	return cc
}

// =============================================================================
// 🧹 cache 命令
// =============================================================================

func runCache(args []string) {
	if len(args) == 0 || args[0] != "purge" {
		fmt.Fprintln(os.Stderr, "Usage: flowdecompose cache purge [--config path] [--namespace analyzer]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("cache purge", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	namespace := fs.String("namespace", analyzer.CacheNamespace, "Key namespace to purge")
	fs.Parse(args[1:])

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	cc := cacheConfig(cfg)
	cc.HealthCheckInterval = 0
	m, err := cache.NewManager(cc, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to cache: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := m.Purge(ctx, *namespace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Purge failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Purged %d keys from namespace %q\n", n, *namespace)
}
