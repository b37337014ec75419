package storage

import "errors"

var (
	errAlreadyOpen = errors.New("storage: an open trade record already exists for this account and symbol")
	errNoSuchTrade = errors.New("storage: no trade record with that id")
)
