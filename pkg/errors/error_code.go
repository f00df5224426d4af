package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidPendingOrder  ErrorCode = 103
	ErrCodeInvalidSymbol        ErrorCode = 104
	ErrCodeInvalidLeverage      ErrorCode = 105
	ErrCodeMissingParameter     ErrorCode = 106

	// Data/Resource errors (200-299)
	ErrCodeAccountNotFound    ErrorCode = 200
	ErrCodeInstrumentNotFound ErrorCode = 201
	ErrCodeOrderNotFound      ErrorCode = 202
	ErrCodeContractNotFound   ErrorCode = 203
	ErrCodePairNotFound       ErrorCode = 204
	ErrCodePriceNotFound      ErrorCode = 205

	// Ownership errors (300-399)
	ErrCodeForbidden ErrorCode = 300

	// Execution errors (500-599)
	ErrCodeExecutionFailed        ErrorCode = 500
	ErrCodeInsufficientBalance    ErrorCode = 501
	ErrCodeLeverageExceeded       ErrorCode = 502
	ErrCodeInstrumentNotTradeable ErrorCode = 503

	// State errors (600-699)
	ErrCodeNotPending  ErrorCode = 600
	ErrCodeNotOpen     ErrorCode = 601
	ErrCodePairNotOpen ErrorCode = 602

	// Infrastructure errors (700-799)
	ErrCodeStorageFailed ErrorCode = 700
	ErrCodeFeedFailed    ErrorCode = 701
)
