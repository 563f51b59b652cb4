package disk

import "errors"

var errDiskInvalidName = errors.New("invalid disk name")
var errDiskInvalidSize = errors.New("invalid disk size")
var errDiskInvalidFormat = errors.New("invalid disk format")
var errDiskExists = errors.New("disk exists")
