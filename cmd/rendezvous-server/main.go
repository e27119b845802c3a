// Package main 提供独立的 Rendezvous 服务器
//
// Rendezvous 服务器是命名空间级节点发现的汇合点：
// 节点在命名空间注册自己，其他节点查询该命名空间内的活跃节点。
//
// 使用方法:
//
//	go run main.go -port 8888
//
// 或使用 Docker（编排层通过 RENDEZVOUS_PORT 传入端口）:
//
//	docker run -e RENDEZVOUS_PORT=8888 -p 8888:8888 rendezvous-server
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-rendezvous/config"
	"github.com/dep2p/go-rendezvous/internal/rendezvous"
	"github.com/dep2p/go-rendezvous/internal/transport/tcp"
	"github.com/dep2p/go-rendezvous/pkg/interfaces"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// identityFile 身份文件名（保存在数据目录下，重启后身份不变）
const identityFile = "identity"

func main() {
	if err := run(); err != nil {
		fmt.Printf("❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "配置文件路径（JSON）")
	port := flag.Int("port", 0, "监听端口（覆盖配置文件）")
	dataDir := flag.String("data-dir", "data/rendezvous", "数据目录（身份文件与持久化存储）")
	persist := flag.Bool("persist", false, "持久化注册信息（覆盖配置文件）")
	metricsAddr := flag.String("metrics-addr", "", "指标/健康检查监听地址（覆盖配置文件）")
	logLevel := flag.String("log-level", "", "日志级别: debug/info/warn/error（覆盖配置文件）")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *persist {
		cfg.Storage.Enabled = true
		cfg.Storage.Path = filepath.Join(*dataDir, "store")
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}
	setupLogging(cfg.Log)

	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            Rendezvous Server                         ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	id, err := loadOrCreateIdentity(*dataDir)
	if err != nil {
		return fmt.Errorf("加载身份失败: %w", err)
	}

	host, err := tcp.New(id.String(), net.JoinHostPort(cfg.Server.ListenAddr, fmt.Sprint(cfg.Server.Port)))
	if err != nil {
		return fmt.Errorf("启动监听失败: %w", err)
	}
	defer func() { _ = host.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		fmt.Printf("\n收到信号 %v，正在关闭...\n", sig)
		cancel()
	}()

	var point *rendezvous.Point
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.Supply(cfg),
		fx.Provide(func() interfaces.Host { return host }),
		rendezvous.Module,
		fx.Populate(&point),
	)
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("启动服务失败: %w", err)
	}

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr, point)
	}

	printServerInfo(cfg, host, id)

	if interval := cfg.Server.StatsInterval.Duration(); interval > 0 {
		go reportStats(ctx, point, interval)
	}

	<-ctx.Done()

	fmt.Println("\n正在关闭 Rendezvous 服务器...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return err
	}
	fmt.Println("再见! 👋")
	return nil
}

// setupLogging 按配置初始化默认日志
func setupLogging(cfg config.LogConfig) {
	level := log.LevelInfo
	switch cfg.Level {
	case "debug":
		level = log.LevelDebug
	case "warn":
		level = log.LevelWarn
	case "error":
		level = log.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		log.SetDefault(log.NewJSON(os.Stderr, opts))
	} else {
		log.SetDefault(log.New(os.Stderr, opts))
	}
}

// loadOrCreateIdentity 加载或生成节点身份
//
// 身份保存在数据目录下，进程重启后保持不变，编排层打印的连接
// 地址因此保持有效。
func loadOrCreateIdentity(dataDir string) (types.PeerID, error) {
	path := filepath.Join(dataDir, identityFile)

	data, err := os.ReadFile(path)
	if err == nil {
		id := types.PeerID(string(data))
		if !id.IsEmpty() {
			return id, nil
		}
	}

	id, err := types.RandomPeerID()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id.String()), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

// serveMetrics 提供 /metrics 与 /healthz
//
// 存储进入不健康状态（持久化后端写入失败）时 /healthz 返回 503，
// 编排层据此重启服务。
func serveMetrics(addr string, point *rendezvous.Point) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !point.Store().Healthy() {
			http.Error(w, "store unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Printf("指标服务退出: %v\n", err)
	}
}

// printServerInfo 打印服务器信息与可分享的连接地址
func printServerInfo(cfg *config.Config, host *tcp.Host, id types.PeerID) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║                    服务器信息                         ║")
	fmt.Println("╠══════════════════════════════════════════════════════╣")
	fmt.Printf("║ 节点 ID: %s\n", id)
	fmt.Println("║")
	fmt.Println("║ 监听地址:")
	for _, addr := range host.Addrs() {
		fmt.Printf("║   • %s\n", addr)
	}
	if cfg.Storage.Enabled {
		fmt.Printf("║ 持久化: %s\n", cfg.Storage.Path)
	}
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║ 指标: http://%s/metrics\n", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("客户端可以使用以下地址连接:")
	for _, ma := range shareableAddrs(cfg, host) {
		fmt.Printf("  %s\n", ma.WithPeerID(id))
	}
	fmt.Println()

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("Rendezvous 服务器已启动，等待节点注册...")
	fmt.Println("按 Ctrl+C 停止服务器")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// shareableAddrs 拼接对外公布的连接地址
func shareableAddrs(cfg *config.Config, host *tcp.Host) []types.Multiaddr {
	var addrs []types.Multiaddr
	for _, announce := range cfg.Server.AnnounceAddrs {
		hostport := net.JoinHostPort(announce, fmt.Sprint(cfg.Server.Port))
		ma, err := types.FromHostPort(hostport)
		if err != nil {
			continue
		}
		addrs = append(addrs, ma)
	}
	if len(addrs) == 0 {
		for _, addr := range host.Addrs() {
			if ma, err := types.ParseMultiaddr(addr); err == nil {
				addrs = append(addrs, ma)
			}
		}
	}
	return addrs
}

// reportStats 定期报告统计信息
func reportStats(ctx context.Context, point *rendezvous.Point, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := point.Stats()
			fmt.Printf("[Stats] 注册数: %d | 命名空间: %d | 请求: reg=%d unreg=%d disc=%d | 已过期: %d\n",
				stats.TotalRegistrations,
				stats.TotalNamespaces,
				stats.RegistersReceived,
				stats.UnregistersReceived,
				stats.DiscoversReceived,
				stats.RegistrationsExpired)
		}
	}
}
