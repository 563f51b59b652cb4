package store

import "errors"

var errRecordInvalidName = errors.New("invalid record name")
var errRecordNotFound = errors.New("record not found")
