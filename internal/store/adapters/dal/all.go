// Package dal importa todos los adapters para auto-registro.
// Importar este paquete en main.go para habilitar todos los drivers.
//
// Uso:
//
//	import _ "github.com/dropDatabas3/identityd/internal/store/adapters/dal"
package dal

import (
	_ "github.com/dropDatabas3/identityd/internal/store/adapters/couchdb"
	_ "github.com/dropDatabas3/identityd/internal/store/adapters/memory"
)
