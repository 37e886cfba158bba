package service

import (
	"fmt"

	"familytree-backend/internal/domains/family/model"
)

// CheckVersion compares the stored version with the one the client last read.
// Mọi check chạy trước khi ghi bất kỳ row nào.
func CheckVersion(current, expected int) error {
	if current != expected {
		return fmt.Errorf("%w: expected version %d, current %d", model.ErrVersionConflict, expected, current)
	}
	return nil
}

// postImageVersion là version mà row phải đang có nếu chưa ai sửa sau entry này
func postImageVersion(e model.AuditEntry) int {
	if e.NewData != nil {
		return e.NewData.Version
	}
	if e.OldData != nil {
		return e.OldData.Version + 1
	}
	return 0
}
