package errs

const (
	ServerInternalError = 500

	ArgsError           = 1001
	NoPermissionError   = 1002
	RecordNotFoundError = 1004
	DuplicateKeyError   = 1005

	TokenInvalidError   = 1501
	TokenExpiredError   = 1502
	TokenMalformedError = 1503
	BadCredentialsError = 1504
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")

	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrNoPermission   = NewCodeError(NoPermissionError, "NoPermissionError")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "RecordNotFoundError")
	ErrDuplicateKey   = NewCodeError(DuplicateKeyError, "DuplicateKeyError")

	ErrTokenInvalid   = NewCodeError(TokenInvalidError, "TokenInvalidError")
	ErrTokenExpired   = NewCodeError(TokenExpiredError, "TokenExpiredError")
	ErrTokenMalformed = NewCodeError(TokenMalformedError, "TokenMalformedError")
	ErrBadCredentials = NewCodeError(BadCredentialsError, "BadCredentialsError")
)

func init() {
	// expired/malformed tokens and failed logins answer like any invalid token
	_ = DefaultCodeRelation.Add(TokenInvalidError, TokenExpiredError)
	_ = DefaultCodeRelation.Add(TokenInvalidError, TokenMalformedError)
	_ = DefaultCodeRelation.Add(TokenInvalidError, BadCredentialsError)
}
