package h3mux

import (
	"errors"
	"fmt"
)

// An ErrCode is an HTTP/3 application error code as defined by draft 17.
type ErrCode uint64

const (
	ErrCodeNoError                ErrCode = 0x0
	ErrCodeWrongSettingsDirection ErrCode = 0x1
	ErrCodePushRefused            ErrCode = 0x2
	ErrCodeInternalError          ErrCode = 0x3
	ErrCodePushAlreadyInCache     ErrCode = 0x4
	ErrCodeRequestCanceled        ErrCode = 0x5
	ErrCodeIncompleteRequest      ErrCode = 0x6
	ErrCodeConnectError           ErrCode = 0x7
	ErrCodeExcessiveLoad          ErrCode = 0x8
	ErrCodeVersionFallback        ErrCode = 0x9
	ErrCodeWrongStream            ErrCode = 0xa
	ErrCodeLimitExceeded          ErrCode = 0xb
	ErrCodeDuplicatePush          ErrCode = 0xc
	ErrCodeUnknownStreamType      ErrCode = 0xd
	ErrCodeWrongStreamCount       ErrCode = 0xe
	ErrCodeClosedCriticalStream   ErrCode = 0xf
	ErrCodeWrongStreamDirection   ErrCode = 0x10
	ErrCodeEarlyResponse          ErrCode = 0x11
	ErrCodeMissingSettings        ErrCode = 0x12
	ErrCodeUnexpectedFrame        ErrCode = 0x13
	ErrCodeRequestRejected        ErrCode = 0x14
	ErrCodeGeneralProtocolError   ErrCode = 0xff
)

// errCodeMalformedFrameBase is the start of the per-frame-type band of
// malformed-frame error codes.
const errCodeMalformedFrameBase ErrCode = 0x100

// MalformedFrameErrCode returns the error code signalling a malformed frame
// of type t.
func MalformedFrameErrCode(t FrameType) ErrCode {
	return errCodeMalformedFrameBase + ErrCode(t)
}

func (e ErrCode) String() string {
	switch e {
	case ErrCodeNoError:
		return "HTTP_NO_ERROR"
	case ErrCodeWrongSettingsDirection:
		return "HTTP_WRONG_SETTING_DIRECTION"
	case ErrCodePushRefused:
		return "HTTP_PUSH_REFUSED"
	case ErrCodeInternalError:
		return "HTTP_INTERNAL_ERROR"
	case ErrCodePushAlreadyInCache:
		return "HTTP_PUSH_ALREADY_IN_CACHE"
	case ErrCodeRequestCanceled:
		return "HTTP_REQUEST_CANCELLED"
	case ErrCodeIncompleteRequest:
		return "HTTP_INCOMPLETE_REQUEST"
	case ErrCodeConnectError:
		return "HTTP_CONNECT_ERROR"
	case ErrCodeExcessiveLoad:
		return "HTTP_EXCESSIVE_LOAD"
	case ErrCodeVersionFallback:
		return "HTTP_VERSION_FALLBACK"
	case ErrCodeWrongStream:
		return "HTTP_WRONG_STREAM"
	case ErrCodeLimitExceeded:
		return "HTTP_LIMIT_EXCEEDED"
	case ErrCodeDuplicatePush:
		return "HTTP_DUPLICATE_PUSH"
	case ErrCodeUnknownStreamType:
		return "HTTP_UNKNOWN_STREAM_TYPE"
	case ErrCodeWrongStreamCount:
		return "HTTP_WRONG_STREAM_COUNT"
	case ErrCodeClosedCriticalStream:
		return "HTTP_CLOSED_CRITICAL_STREAM"
	case ErrCodeWrongStreamDirection:
		return "HTTP_WRONG_STREAM_DIRECTION"
	case ErrCodeEarlyResponse:
		return "HTTP_EARLY_RESPONSE"
	case ErrCodeMissingSettings:
		return "HTTP_MISSING_SETTINGS"
	case ErrCodeUnexpectedFrame:
		return "HTTP_UNEXPECTED_FRAME"
	case ErrCodeRequestRejected:
		return "HTTP_REQUEST_REJECTED"
	case ErrCodeGeneralProtocolError:
		return "HTTP_GENERAL_PROTOCOL_ERROR"
	default:
		if e >= errCodeMalformedFrameBase && e < errCodeMalformedFrameBase+0x100 {
			return fmt.Sprintf("HTTP_MALFORMED_FRAME: %#x", uint64(e-errCodeMalformedFrameBase))
		}
		return fmt.Sprintf("unknown error code: %#x", uint64(e))
	}
}

// A ConnError is a connection-level protocol violation. Returning one from a
// stream callback instructs the transport to tear the connection down with
// the carried error code.
type ConnError struct {
	Code    ErrCode
	Message string
}

func (e *ConnError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

func malformedFrame(t FrameType, msg string) *ConnError {
	return &ConnError{Code: MalformedFrameErrCode(t), Message: msg}
}

// errIncomplete is the frame parser's internal truncation sentinel. It never
// crosses the package boundary: callers keep the buffered bytes and report
// success.
var errIncomplete = errors.New("incomplete frame")
