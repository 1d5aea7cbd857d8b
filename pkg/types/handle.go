package types

import "github.com/google/uuid"

// HandleID 订阅连接的进程内唯一标识
// 在连接建立时分配，与具体对象地址无关
type HandleID uuid.UUID

// NewHandleID 生成新的连接标识
func NewHandleID() HandleID {
	return HandleID(uuid.New())
}

func (id HandleID) String() string {
	return uuid.UUID(id).String()
}
