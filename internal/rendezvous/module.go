package rendezvous

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-rendezvous/config"
	"github.com/dep2p/go-rendezvous/internal/storage/kv"
	pkgif "github.com/dep2p/go-rendezvous/pkg/interfaces"
)

// Module Rendezvous Point 模块
var Module = fx.Module("rendezvous",
	fx.Provide(
		NewFromParams,
	),
	fx.Invoke(
		registerLifecycle,
	),
)

// Params Point 依赖参数
type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Host       pkgif.Host
	UnifiedCfg *config.Config `optional:"true"`
}

// Result Point 导出结果
type Result struct {
	fx.Out

	Point      *Point
	PointIface pkgif.RendezvousPoint
}

// PointConfigFromUnified 从统一配置创建 Point 配置
func PointConfigFromUnified(cfg *config.Config) PointConfig {
	if cfg == nil {
		return DefaultPointConfig()
	}
	return PointConfig{
		Store: StoreConfig{
			MaxRegistrations:             cfg.Rendezvous.MaxRegistrations,
			MaxNamespaces:                cfg.Rendezvous.MaxNamespaces,
			MaxRegistrationsPerNamespace: cfg.Rendezvous.MaxRegistrationsPerNamespace,
			MaxRegistrationsPerPeer:      cfg.Rendezvous.MaxRegistrationsPerPeer,
			MinTTL:                       cfg.Rendezvous.MinTTL.Duration(),
			MaxTTL:                       cfg.Rendezvous.MaxTTL.Duration(),
			DefaultTTL:                   cfg.Rendezvous.DefaultTTL.Duration(),
			MaxDiscoverLimit:             cfg.Rendezvous.MaxDiscoverLimit,
		},
		CleanupInterval:      cfg.Rendezvous.CleanupInterval.Duration(),
		IdleTimeout:          cfg.Server.IdleTimeout.Duration(),
		DefaultDiscoverLimit: cfg.Rendezvous.DefaultDiscoverLimit,
	}
}

// NewFromParams 从 Fx 参数创建 Point
//
// 配置启用持久化时打开 BadgerDB 后端并注入存储。
func NewFromParams(p Params) (Result, error) {
	pointCfg := PointConfigFromUnified(p.UnifiedCfg)

	var opts []PointOption
	if p.UnifiedCfg != nil && p.UnifiedCfg.Storage.Enabled {
		kvCfg := kv.DefaultConfig(p.UnifiedCfg.Storage.Path)
		kvCfg.SyncWrites = p.UnifiedCfg.Storage.SyncWrites
		kvStore, err := kv.Open(kvCfg)
		if err != nil {
			return Result{}, err
		}
		store, err := NewStore(pointCfg.Store, WithBackend(NewKVBackend(kvStore)))
		if err != nil {
			_ = kvStore.Close()
			return Result{}, err
		}
		opts = append(opts, WithPointStore(store))
		// 注入的存储由模块负责关闭
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return store.Close()
			},
		})
	}

	point, err := NewPoint(p.Host, pointCfg, opts...)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Point:      point,
		PointIface: point,
	}, nil
}

// registerLifecycle 将 Point 的启停挂接到 Fx 生命周期
func registerLifecycle(lc fx.Lifecycle, point *Point) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return point.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return point.Stop()
		},
	})
}
