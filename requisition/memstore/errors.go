package memstore

import "errors"

// ErrDuplicateKey mirrors the primary key violation of a SQL store.
var ErrDuplicateKey = errors.New("requisition already exists")
