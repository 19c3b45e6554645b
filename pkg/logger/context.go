package logger

import (
	"context"

	"go.uber.org/zap"
)

// ContextFieldExtractor 从 context 提取字段的函数类型
type ContextFieldExtractor func(ctx context.Context) []zap.Field

// DefaultContextExtractor 默认不提取任何字段
func DefaultContextExtractor(ctx context.Context) []zap.Field {
	return nil
}

type fieldsKey struct{}

// ContextWithFields 在 context 中附加日志字段
func ContextWithFields(ctx context.Context, keysAndValues ...interface{}) context.Context {
	fields := append(FieldsFromContext(ctx), toZapFields(keysAndValues...)...)
	return context.WithValue(ctx, fieldsKey{}, fields)
}

// FieldsFromContext 提取 ContextWithFields 附加的字段，可作为 ContextFieldExtractor 使用
func FieldsFromContext(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	return append([]zap.Field(nil), fields...)
}
