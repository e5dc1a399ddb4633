package repository

import "errors"

var (
	ErrNotFound      = errors.New("запись не найдена")
	ErrSelfParent    = errors.New("задача не может быть родителем самой себя")
	ErrCycleDetected = errors.New("перенос создал бы цикл в иерархии")
	ErrInvalidStatus = errors.New("неизвестный статус")
)
