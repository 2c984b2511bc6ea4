package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的文档或记录不存在
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示写入违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrInvalidPath 表示文档路径无法解析
	ErrInvalidPath = errors.New("repository: invalid document path")
	// ErrInvalidField 表示 PatchFields 中出现了未知字段或错误类型的值
	ErrInvalidField = errors.New("repository: invalid field")
)

var (
	ErrRoomNotFound = ErrNotFound
	ErrMatchExists  = ErrDuplicateEntry
)
