package parser

// DecodedParam is one leaf of a decoded argument list. Nested tuples and arrays of tuples
// are flattened; FullName carries the path, e.g. "order.items[2].price".
type DecodedParam struct {
	Name     string      `json:"name"`
	FullName string      `json:"fullName"`
	Type     string      `json:"type"`
	Value    interface{} `json:"value"`
}

type DecodedMethod struct {
	MethodName string          `json:"methodName"`
	Signature  string          `json:"signature"`
	Selector   string          `json:"selector"`
	Payable    bool            `json:"payable"`
	Params     []*DecodedParam `json:"params"`
}

// DecodedLog is either a decoded event or, when Failed is set, a marker that carries only
// the emitting address.
type DecodedLog struct {
	LogIndex    uint64          `json:"logIndex"`
	Address     string          `json:"address"`
	EventName   string          `json:"eventName,omitempty"`
	Signature   string          `json:"signature,omitempty"`
	TopicParams []*DecodedParam `json:"topicParams,omitempty"`
	DataParams  []*DecodedParam `json:"dataParams,omitempty"`
	Failed      bool            `json:"failed,omitempty"`
}

func (l *DecodedLog) Params() []*DecodedParam {
	params := make([]*DecodedParam, 0, len(l.TopicParams)+len(l.DataParams))
	params = append(params, l.TopicParams...)
	return append(params, l.DataParams...)
}

// Param returns the first parameter with the given full name.
func (l *DecodedLog) Param(fullName string) (*DecodedParam, bool) {
	for _, p := range l.Params() {
		if p.FullName == fullName {
			return p, true
		}
	}
	return nil, false
}

func (m *DecodedMethod) Param(fullName string) (*DecodedParam, bool) {
	for _, p := range m.Params {
		if p.FullName == fullName {
			return p, true
		}
	}
	return nil, false
}
