package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/counter-agent/pkg/config"
	"github.com/counter-agent/pkg/goid"
)

type Logger = zap.Logger

const timeLayout = "2006-01-02 15:04:05.000 -07:00"

var (
	baseLogger    *zap.Logger
	defaultFields = struct {
		Group string
	}{}
	loggerInitOnce    sync.Once
	loggerInitialized atomic.Bool
	mu                sync.RWMutex
)

// ParseLevel 解析日志级别，未知级别按 info 处理
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	case "pan", "panic":
		return zapcore.PanicLevel
	case "fat", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init 全局初始化一次：控制台输出 + 按天切割的 JSON 文件
func Init(cfg config.ZapLogConfig) error {
	var err error
	loggerInitOnce.Do(func() {
		level := ParseLevel(cfg.Level)

		if err = os.MkdirAll(cfg.Path, 0755); err != nil {
			return
		}

		maxAge := time.Duration(cfg.MaxAge) * 24 * time.Hour
		if maxAge <= 0 {
			maxAge = 7 * 24 * time.Hour
		}
		writer, wErr := rotatelogs.New(
			filepath.Join(cfg.Path, "counter-agent-%Y%m%d.log"),
			rotatelogs.WithMaxAge(maxAge),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithRotationSize(int64(cfg.MaxSize)*1024*1024),
		)
		if wErr != nil {
			err = wErr
			return
		}

		jsonCfg := zap.NewProductionEncoderConfig()
		jsonCfg.TimeKey = "timestamp"
		jsonCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		jsonCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		jsonEncoder := zapcore.NewJSONEncoder(jsonCfg)

		// 标准输出按配置选择编码，文件始终是 JSON
		stdoutEncoder := jsonEncoder
		if cfg.Format != "json" {
			stdoutEncoder = consoleEncoder()
		}

		core := zapcore.NewTee(
			zapcore.NewCore(stdoutEncoder, zapcore.AddSync(os.Stdout), level),
			zapcore.NewCore(jsonEncoder, zapcore.AddSync(writer), level),
		)

		baseLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
		loggerInitialized.Store(true)
	})
	return err
}

func consoleEncoder() zapcore.Encoder {
	// 控制台彩色时间
	customTimeEncoderConsole := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format(timeLayout)))
	}

	coloredLevelEncoder := func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		var levelStr string
		switch level {
		case zapcore.DebugLevel:
			levelStr = "\033[36mDEBUG\033[0m"
		case zapcore.InfoLevel:
			levelStr = "\033[32mINFO \033[0m"
		case zapcore.WarnLevel:
			levelStr = "\033[33mWARN \033[0m"
		case zapcore.ErrorLevel:
			levelStr = "\033[31mERROR\033[0m"
		case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
			levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
		default:
			levelStr = "UNK  "
		}
		enc.AppendString(levelStr)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.ConsoleSeparator = " "
	cfg.EncodeLevel = coloredLevelEncoder
	cfg.EncodeTime = customTimeEncoderConsole
	// Caller 两级路径
	cfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// SetDefaultGroup 设置未显式指定 group 时使用的默认值
func SetDefaultGroup(group string) {
	mu.Lock()
	defer mu.Unlock()
	defaultFields.Group = group
}

func GetDefaultGroup() string {
	mu.RLock()
	defer mu.RUnlock()
	return defaultFields.Group
}

func getDefaultFields(groupOverride string) []zapcore.Field {
	group := GetDefaultGroup()
	if groupOverride != "" {
		group = groupOverride
	}
	return []zapcore.Field{
		zap.String("group", group),
		zap.String("goid", strconv.FormatUint(goid.GetGID(), 10)),
	}
}

func log(level zapcore.Level, msg string, groupOverride string, fields ...zapcore.Field) {
	if !loggerInitialized.Load() {
		panic("logger not initialized: call logger.Init() first")
	}

	merged := append(getDefaultFields(groupOverride), fields...)
	l := baseLogger.WithOptions(zap.AddCallerSkip(1))

	switch level {
	case zap.DebugLevel:
		l.Debug(msg, merged...)
	case zap.InfoLevel:
		l.Info(msg, merged...)
	case zap.WarnLevel:
		l.Warn(msg, merged...)
	case zap.ErrorLevel:
		l.Error(msg, merged...)
	case zap.PanicLevel:
		l.Panic(msg, merged...)
	case zap.FatalLevel:
		l.Fatal(msg, merged...)
	}
}

func Debug(msg string, groupOverride string, fields ...zapcore.Field) {
	log(zap.DebugLevel, msg, groupOverride, fields...)
}
func Info(msg string, groupOverride string, fields ...zapcore.Field) {
	log(zap.InfoLevel, msg, groupOverride, fields...)
}
func Warn(msg string, groupOverride string, fields ...zapcore.Field) {
	log(zap.WarnLevel, msg, groupOverride, fields...)
}
func Error(msg string, groupOverride string, fields ...zapcore.Field) {
	log(zap.ErrorLevel, msg, groupOverride, fields...)
}
func Panic(msg string, groupOverride string, fields ...zapcore.Field) {
	log(zap.PanicLevel, msg, groupOverride, fields...)
}
func Fatal(msg string, groupOverride string, fields ...zapcore.Field) {
	log(zap.FatalLevel, msg, groupOverride, fields...)
}

// Enabled 判断某级别是否会输出，用于跳过高频路径上的字段构造
func Enabled(level zapcore.Level) bool {
	return loggerInitialized.Load() && baseLogger.Core().Enabled(level)
}

func Sync() error {
	if !loggerInitialized.Load() {
		return nil
	}
	return baseLogger.Sync()
}

func GetLogger() *zap.Logger {
	if !loggerInitialized.Load() {
		panic("logger not initialized: call logger.Init() first")
	}
	return baseLogger
}
