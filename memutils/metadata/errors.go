package metadata

import "github.com/pkg/errors"

var ErrUnknownBlock = errors.New("no block begins at the provided offset")
var ErrBlockAlreadyFree = errors.New("block is already free")
