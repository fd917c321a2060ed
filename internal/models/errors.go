package models

import "errors"

var (
	// ErrInvalidArgument indica um ID ou URL de produto inválido
	ErrInvalidArgument = errors.New("argumento inválido")
	// ErrNotFound indica que o produto não está sendo monitorado
	ErrNotFound = errors.New("produto não encontrado")
	// ErrDuplicate indica que o produto já está sendo monitorado
	ErrDuplicate = errors.New("produto já monitorado")
)
