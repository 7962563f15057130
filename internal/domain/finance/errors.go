package finance

import "errors"

var (
	ErrProcedureNotFound     = errors.New("procedure not found")
	ErrDepartmentNotFound    = errors.New("department not found")
	ErrProcedureCostNotFound = errors.New("procedure cost not found")
	ErrBudgetNotFound        = errors.New("budget record not found")
	ErrInvalidInput          = errors.New("invalid input")
	// ErrWriteConflict means the store rejected a concurrent budget write.
	ErrWriteConflict = errors.New("budget write conflict")
)
