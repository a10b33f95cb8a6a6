package registers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/counter-agent/internal/device"
	"github.com/counter-agent/internal/flexcounter"
	"github.com/counter-agent/internal/idmap"
	"github.com/counter-agent/pkg/config"
	"github.com/counter-agent/pkg/logger"
)

// ScriptLoader 把插件脚本加载到服务端并返回 SHA
type ScriptLoader interface {
	Load(ctx context.Context, script string) (string, error)
}

// RegisterGroups 把配置中的静态组和对象注册到轮询引擎
// 虚拟ID由 (switchIndex, 类型, 序号) 构成，真实ID为 rid，未配置时取序号
func RegisterGroups(ctx context.Context, mgr *flexcounter.Manager, groups []config.GroupConfig, switchIndex uint8, ids *idmap.Map, loader ScriptLoader) error {
	shas := make(map[string]string)
	load := func(path string) (string, error) {
		if sha, ok := shas[path]; ok {
			return sha, nil
		}
		if loader == nil {
			return "", fmt.Errorf("plugin %s: no script loader", path)
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read plugin %s: %w", path, err)
		}
		sha, err := loader.Load(ctx, string(body))
		if err != nil {
			return "", fmt.Errorf("load plugin %s: %w", path, err)
		}
		shas[path] = sha
		return sha, nil
	}

	for _, g := range groups {
		fvs, err := groupSettings(g, load)
		if err != nil {
			return fmt.Errorf("group %s: %w", g.Name, err)
		}
		if len(fvs) > 0 {
			if err := mgr.AddGroupPlugin(g.Name, fvs); err != nil {
				return err
			}
		}
		for _, o := range g.Objects {
			ot, ok := device.ParseObjectType(o.Type)
			if !ok {
				return fmt.Errorf("group %s: unknown object type %q", g.Name, o.Type)
			}
			vid := idmap.Make(switchIndex, ot, o.Index)
			rid := device.ObjectID(o.RID)
			if rid == 0 {
				rid = device.ObjectID(o.Index)
			}
			ids.Set(vid, rid)
			fv := flexcounter.FieldValue{Field: o.Field, Value: strings.Join(o.IDs, ",")}
			if err := mgr.AddCounter(ctx, g.Name, vid, rid, []flexcounter.FieldValue{fv}); err != nil {
				return fmt.Errorf("group %s object %s: %w", g.Name, device.FormatOID(vid), err)
			}
		}
		logger.Info("group registered from config", g.Name,
			zap.Int("objects", len(g.Objects)),
			zap.Int("plugins", len(g.Plugins)))
	}
	return nil
}

// groupSettings 转换为组配置字段，状态放在最后
func groupSettings(g config.GroupConfig, load func(path string) (string, error)) ([]flexcounter.FieldValue, error) {
	var fvs []flexcounter.FieldValue
	if g.PollInterval > 0 {
		fvs = append(fvs, flexcounter.FieldValue{
			Field: flexcounter.PollIntervalField,
			Value: strconv.FormatInt(g.PollInterval.Milliseconds(), 10),
		})
	}
	if g.StatsMode != "" {
		fvs = append(fvs, flexcounter.FieldValue{Field: flexcounter.StatsModeField, Value: g.StatsMode})
	}
	for _, p := range g.Plugins {
		sha, err := load(p.Script)
		if err != nil {
			return nil, err
		}
		fvs = append(fvs, flexcounter.FieldValue{Field: p.Field, Value: sha})
	}
	if g.Status != "" {
		fvs = append(fvs, flexcounter.FieldValue{Field: flexcounter.StatusField, Value: g.Status})
	}
	return fvs, nil
}
