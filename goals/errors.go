package goals

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrBoardDeleted    = errors.New("board is deleted")
	ErrCategoryDeleted = errors.New("category is deleted")
	ErrInvalidInput    = errors.New("invalid input")
)
