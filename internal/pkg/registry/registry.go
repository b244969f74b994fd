package registry

import (
	"sort"

	"meal_voucher/internal/pkg/config"
	"meal_voucher/internal/pkg/cutoff"
	"meal_voucher/internal/pkg/lock"
	"meal_voucher/internal/pkg/push"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Router *gin.Engine
	Config *config.Config

	// Cutoff 截单策略，全进程共享一份，由管理员接口修改
	Cutoff *cutoff.Policy
	// Locker 订单级租约锁，未配置 Redis 时为进程内实现
	Locker lock.Locker
	// Push 推送服务，可为 nil
	Push push.PushService
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块
func Register(module Module) {
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// InitModules 按优先级初始化所有模块
func InitModules(ctx *ModuleContext) error {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}

	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Priority() == modules[j].Priority() {
			return modules[i].Name() < modules[j].Name()
		}
		return modules[i].Priority() < modules[j].Priority()
	})

	for _, module := range modules {
		if err := module.Init(ctx); err != nil {
			return err
		}
	}

	return nil
}
