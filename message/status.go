package message

import (
	"fmt"
)

// Status is a Configuration Server status code.
type Status byte

const (
	StatusSuccess                        Status = 0x00
	StatusInvalidAddress                 Status = 0x01
	StatusInvalidModel                   Status = 0x02
	StatusInvalidAppKeyIndex             Status = 0x03
	StatusInvalidNetKeyIndex             Status = 0x04
	StatusInsufficientResources          Status = 0x05
	StatusKeyIndexAlreadyStored          Status = 0x06
	StatusInvalidPublishParameters       Status = 0x07
	StatusNotASubscribeModel             Status = 0x08
	StatusStorageFailure                 Status = 0x09
	StatusFeatureNotSupported            Status = 0x0A
	StatusCannotUpdate                   Status = 0x0B
	StatusCannotRemove                   Status = 0x0C
	StatusCannotBind                     Status = 0x0D
	StatusTemporarilyUnableToChangeState Status = 0x0E
	StatusCannotSet                      Status = 0x0F
	StatusUnspecifiedError               Status = 0x10
	StatusInvalidBinding                 Status = 0x11
)

// Mesh Profile 1.0.1, 4.3.5, Table 4.108
var statusStrings = []string{
	"success",
	"invalid address",
	"invalid model",
	"invalid appkey index",
	"invalid netkey index",
	"insufficient resources",
	"key index already stored",
	"invalid publish parameters",
	"not a subscribe model",
	"storage failure",
	"feature not supported",
	"cannot update",
	"cannot remove",
	"cannot bind",
	"temporarily unable to change state",
	"cannot set",
	"unspecified error",
	"invalid binding",
}

func (s Status) String() string {
	if int(s) < len(statusStrings) {
		return statusStrings[s]
	}
	return fmt.Sprintf("rfu status 0x%02x", byte(s))
}

// Error makes a non-success status usable as an error value.
func (s Status) Error() string {
	return "remote status: " + s.String()
}
