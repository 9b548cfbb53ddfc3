package service

import "errors"

var ErrInvalidStatus = errors.New("invalid endpoint status")
