package hubspace

// FunctionDef is a raw function object from a metadevice description payload.
type FunctionDef struct {
	ID               string          `json:"id,omitempty"`
	FunctionClass    string          `json:"functionClass"`
	FunctionInstance string          `json:"functionInstance,omitempty"`
	Type             string          `json:"type,omitempty"`
	Values           []FunctionValue `json:"values,omitempty"`
}

// FunctionValue is one allowed value token inside a function definition.
type FunctionValue struct {
	Name string `json:"name"`
}

// WireValue is one state value as it appears on the wire, in both GET
// responses and PUT request/response bodies. Value is vendor-native and
// heterogeneous: numbers, strings like "on" or "3500K", booleans.
type WireValue struct {
	FunctionClass    string `json:"functionClass"`
	FunctionInstance string `json:"functionInstance,omitempty"`
	Value            any    `json:"value"`
	LastUpdateTime   int64  `json:"lastUpdateTime,omitempty"`
}

// StatePayload is the JSON shape of the metadevice state resource.
// MetadeviceID is only set on PUT requests.
type StatePayload struct {
	MetadeviceID string      `json:"metadeviceId,omitempty"`
	Values       []WireValue `json:"values"`
}

// MetadeviceDescription carries the function catalog of a metadevice.
type MetadeviceDescription struct {
	Functions []FunctionDef `json:"functions"`
}

// Metadevice is one entry of the account metadevice list, fetched with
// expansions=state so the initial state rides along.
type Metadevice struct {
	ID                     string                `json:"id"`
	TypeID                 string                `json:"typeId,omitempty"`
	FriendlyName           string                `json:"friendlyName"`
	SemanticDescriptionKey string                `json:"semanticDescriptionKey,omitempty"`
	Description            MetadeviceDescription `json:"description"`
	State                  *StatePayload         `json:"state,omitempty"`
}

// userInfo is the /users/me response, reduced to account resolution.
type userInfo struct {
	AccountAccess []struct {
		Account struct {
			AccountID string `json:"accountId"`
		} `json:"account"`
	} `json:"accountAccess"`
}
