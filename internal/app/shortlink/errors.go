package shortlink

import (
	"errors"
	"fmt"
)

// 领域层错误分类，传输层按它映射状态码：
// validation 400，not found 404，conflict 409，dependency 500。
//
// 设计原因：
// - 上层用 errors.Is 判断类别，不依赖错误字符串
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("url not found")
	ErrConflict   = errors.New("already exists")
	ErrDependency = errors.New("dependency unavailable")
)

// 有唯一约束的字段
const (
	FieldShortID     = "short_id"
	FieldCustomAlias = "custom_alias"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError 哪个唯一字段冲突了
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == FieldCustomAlias {
		return "custom alias is already taken"
	}
	return e.Field + " already exists"
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// DependencyError 包装存储/缓存故障
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *DependencyError) Unwrap() error { return e.Err }

func (e *DependencyError) Is(target error) bool { return target == ErrDependency }

func dependency(op string, err error) error {
	var de *DependencyError
	if errors.As(err, &de) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}
