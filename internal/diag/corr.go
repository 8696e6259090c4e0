package diag

import "github.com/google/uuid"

// NewCorrID 生成一次运行（或一次 HTTP 请求）的关联 ID。
func NewCorrID() string { return uuid.NewString() }
