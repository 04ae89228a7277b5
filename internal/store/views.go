package store

import (
	"encoding/json"
	"strings"
)

// DesignDocument agrupa vistas bajo un nombre ("_design/{Name}" en CouchDB).
type DesignDocument struct {
	Name  string
	Views map[string]ViewDefinition
}

// ViewDefinition define una vista dos veces: en JavaScript para CouchDB y
// como función Go para el adapter memory. Ambas deben emitir lo mismo.
type ViewDefinition struct {
	Map    string
	Reduce string // "" o un reduce builtin ("_count", "_sum")

	Emit EmitFunc
}

// EmitFunc mapea un documento (key + body JSON) a cero o más entradas.
type EmitFunc func(key string, body json.RawMessage) []Emission

// Emission es una entrada de índice.
type Emission struct {
	Key   any
	Value any
}

// Equal compara la parte persistida (Map/Reduce) de dos definiciones.
func (v ViewDefinition) Equal(o ViewDefinition) bool {
	return strings.TrimSpace(v.Map) == strings.TrimSpace(o.Map) &&
		strings.TrimSpace(v.Reduce) == strings.TrimSpace(o.Reduce)
}

// ViewRef identifica una vista.
type ViewRef struct {
	Design string
	View   string
}

func (r ViewRef) String() string { return r.Design + "/" + r.View }

// ViewQuery parámetros de consulta. Key, Keys y StartKey/EndKey son
// excluyentes; se aplica el primero que esté presente.
type ViewQuery struct {
	Key          any
	Keys         []any
	StartKey     any
	EndKey       any
	InclusiveEnd bool
	IncludeDocs  bool
	Reduce       bool
	Limit        int
}

// ViewRow es una fila de resultado. Doc solo viene con IncludeDocs.
type ViewRow struct {
	ID    string
	Key   json.RawMessage
	Value json.RawMessage
	Doc   json.RawMessage
}

// ─── Design document "identity" ───

// IdentityDesign es el nombre del design document instalado por el bootstrapper.
const IdentityDesign = "identity"

var (
	ViewCountByType           = ViewRef{IdentityDesign, "count_by_type"}
	ViewUsersBySubject        = ViewRef{IdentityDesign, "users_by_subject"}
	ViewGrantsBySubject       = ViewRef{IdentityDesign, "grants_by_subject"}
	ViewGrantsBySubjectClient = ViewRef{IdentityDesign, "grants_by_subject_client"}
	ViewResourcesByScope      = ViewRef{IdentityDesign, "resources_by_scope"}
)

// IdentityDesignDocument retorna la definición actual de las vistas del core.
func IdentityDesignDocument() DesignDocument {
	return DesignDocument{
		Name: IdentityDesign,
		Views: map[string]ViewDefinition{
			ViewCountByType.View: {
				Map: `function (doc) {
  var i = doc._id.indexOf(':');
  if (i > 0) { emit(doc._id.substring(0, i), null); }
}`,
				Reduce: "_count",
				Emit: func(key string, _ json.RawMessage) []Emission {
					if t := TypeOfKey(key); t != "" {
						return []Emission{{Key: t}}
					}
					return nil
				},
			},
			ViewUsersBySubject.View: {
				Map: `function (doc) {
  if (doc._id.indexOf('user:') === 0 && doc.subject_id) { emit(doc.subject_id, null); }
}`,
				Emit: fieldEmitter(TypeUser, "subject_id"),
			},
			ViewGrantsBySubject.View: {
				Map: `function (doc) {
  if (doc._id.indexOf('persistedgrant:') === 0 && doc.subject_id) { emit(doc.subject_id, null); }
}`,
				Emit: fieldEmitter(TypeGrant, "subject_id"),
			},
			ViewGrantsBySubjectClient.View: {
				Map: `function (doc) {
  if (doc._id.indexOf('persistedgrant:') === 0 && doc.subject_id) { emit([doc.subject_id, doc.client_id], null); }
}`,
				Emit: func(key string, body json.RawMessage) []Emission {
					if TypeOfKey(key) != TypeGrant {
						return nil
					}
					var g struct {
						SubjectID string `json:"subject_id"`
						ClientID  string `json:"client_id"`
					}
					if json.Unmarshal(body, &g) != nil || g.SubjectID == "" {
						return nil
					}
					return []Emission{{Key: []any{g.SubjectID, g.ClientID}}}
				},
			},
			ViewResourcesByScope.View: {
				Map: `function (doc) {
  if (doc._id.indexOf('identityresource:') === 0) { emit(doc.name, 'identity'); }
  if (doc._id.indexOf('apiresource:') === 0 && doc.scopes) {
    for (var i = 0; i < doc.scopes.length; i++) { emit(doc.scopes[i].name, 'api'); }
  }
}`,
				Emit: func(key string, body json.RawMessage) []Emission {
					switch TypeOfKey(key) {
					case TypeIdentityResource:
						var r struct {
							Name string `json:"name"`
						}
						if json.Unmarshal(body, &r) != nil {
							return nil
						}
						return []Emission{{Key: r.Name, Value: "identity"}}
					case TypeAPIResource:
						var r struct {
							Scopes []struct {
								Name string `json:"name"`
							} `json:"scopes"`
						}
						if json.Unmarshal(body, &r) != nil {
							return nil
						}
						out := make([]Emission, 0, len(r.Scopes))
						for _, s := range r.Scopes {
							out = append(out, Emission{Key: s.Name, Value: "api"})
						}
						return out
					}
					return nil
				},
			},
		},
	}
}

func fieldEmitter(typeTag, field string) EmitFunc {
	return func(key string, body json.RawMessage) []Emission {
		if TypeOfKey(key) != typeTag {
			return nil
		}
		var m map[string]json.RawMessage
		if json.Unmarshal(body, &m) != nil {
			return nil
		}
		var v string
		if json.Unmarshal(m[field], &v) != nil || v == "" {
			return nil
		}
		return []Emission{{Key: v}}
	}
}
