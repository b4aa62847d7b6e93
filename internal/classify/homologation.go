package classify

import "strings"

// Label is a resolved (name, macro) pair.
type Label struct {
	Name  string
	Macro string
}

// Homologation maps lowercased legacy intents from the upstream assistant
// to taxonomy categories.
type Homologation map[string]Label

// DefaultHomologation is the built-in legacy intent table.
var DefaultHomologation = Homologation{
	"transferencias":         {"Transferencias", "Transacciones"},
	"transferencia":          {"Transferencias", "Transacciones"},
	"pagos":                  {"Pagos", "Transacciones"},
	"pago de servicios":      {"Pagos", "Transacciones"},
	"consulta de saldo":      {"Consulta de saldo", "Consultas"},
	"saldo":                  {"Consulta de saldo", "Consultas"},
	"movimientos":            {"Consulta de movimientos", "Consultas"},
	"bloqueo de tarjeta":     {"Bloqueo de tarjeta", "Seguridad"},
	"bloqueo":                {"Bloqueo de tarjeta", "Seguridad"},
	"cambio de clave":        {"Gestión de clave", "Seguridad"},
	"olvido de clave":        {"Gestión de clave", "Seguridad"},
	"certificados":           {"Certificados", "Trámites"},
	"extractos":              {"Extractos", "Trámites"},
	"actualizacion de datos": {"Actualización de datos", "Trámites"},
	"reclamos":               {"Reclamos", "Servicio al cliente"},
	"saludo":                 {"Saludo", "General"},
	"despedida":              {"Despedida", "General"},
}

// Lookup matches intent exactly, ignoring case and surrounding space.
func (h Homologation) Lookup(intent string) (Label, bool) {
	l, ok := h[strings.ToLower(strings.TrimSpace(intent))]
	return l, ok
}
