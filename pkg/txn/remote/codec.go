package remote

import "fmt"

// rawMessage carries pre-encoded wire bytes through gRPC untouched.
type rawMessage []byte

// rawCodec passes raw bytes through the gRPC marshalling layer. Both the
// client and the server force it on their calls, so the wire format stays
// under this package's control without generated message types.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(*rawMessage)
	if !ok {
		return nil, fmt.Errorf("raw codec: cannot marshal %T", v)
	}
	return *m, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(*rawMessage)
	if !ok {
		return fmt.Errorf("raw codec: cannot unmarshal into %T", v)
	}
	*m = append((*m)[:0], data...)
	return nil
}

func (rawCodec) Name() string {
	return "dockv-raw"
}
