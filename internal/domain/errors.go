package domain

import "errors"

// ErrorKind enumera la taxonomia de fallos del nucleo. Reemplaza las formas
// de error ad hoc: todo error cruzando un borde de componente lleva un kind.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindStorage
	KindNotFound
	KindAuthorization
	KindNotification
)

func (k ErrorKind) String() string {
	switch k {
	case KindStorage:
		return "storage"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Error etiqueta una causa con su ErrorKind.
type Error struct {
	kind ErrorKind
	err  error
}

func NewError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: err}
}

func StorageError(err error) error       { return NewError(KindStorage, err) }
func NotFoundError(err error) error      { return NewError(KindNotFound, err) }
func AuthorizationError(err error) error { return NewError(KindAuthorization, err) }
func NotificationError(err error) error  { return NewError(KindNotification, err) }

func (e *Error) Error() string { return e.kind.String() + ": " + e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() ErrorKind { return e.kind }

// KindOf extrae el ErrorKind de cualquier punto de la cadena de errores.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.kind
	}
	return KindUnknown
}
