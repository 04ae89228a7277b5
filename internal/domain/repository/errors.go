package repository

import "errors"

var (
	// ErrNotFound indica que el documento o recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indica una colisión al crear (la clave ya existe).
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict indica pérdida de concurrencia optimista: la revisión cambió
	// entre la lectura y la escritura. El caller debe repetir el read-modify-write.
	ErrConflict = errors.New("conflict")

	// ErrCircuitOpen indica que la dependencia se presume caída y la llamada
	// no se intentó.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrArgumentNull indica que falta un parámetro requerido.
	ErrArgumentNull = errors.New("argument null")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")
)

// ArgumentNullError nombra el parámetro requerido que llegó vacío.
// errors.Is(err, ErrArgumentNull) es true.
type ArgumentNullError struct {
	Param string
}

func (e *ArgumentNullError) Error() string { return "argument null: " + e.Param }

func (e *ArgumentNullError) Is(target error) bool { return target == ErrArgumentNull }

// ArgumentNull construye un *ArgumentNullError para param.
func ArgumentNull(param string) error {
	return &ArgumentNullError{Param: param}
}

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists verifica si el error es ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsCircuitOpen verifica si el error es ErrCircuitOpen.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
