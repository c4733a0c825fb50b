package usecase

import "github.com/m-mizutani/goerr/v2"

var (
	ErrEmptyQuery    = goerr.New("query is empty")
	ErrEmptyQuestion = goerr.New("question is empty")
)

// Context keys for error values
const (
	SessionIDKey = "session_id"
	QueryKey     = "query"
)
