package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// MaxCallBytes bounds a decoded request envelope.
const MaxCallBytes = 1 << 20

// DecodeCall reads one JSON envelope. A missing id is filled in.
func DecodeCall(r io.Reader) (MethodCall, error) {
	var call MethodCall
	dec := json.NewDecoder(io.LimitReader(r, MaxCallBytes))
	if err := dec.Decode(&call); err != nil {
		return MethodCall{}, fmt.Errorf("decode call: %w", err)
	}
	if call.Method == "" {
		return MethodCall{}, errors.New("decode call: method is required")
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	return call, nil
}

// NewCall builds a call with a fresh id. args may be nil.
func NewCall(method string, args any) (MethodCall, error) {
	call := MethodCall{ID: uuid.NewString(), Method: method}
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return MethodCall{}, fmt.Errorf("encode arguments: %w", err)
		}
		call.Arguments = b
	}
	return call, nil
}

func EncodeResponse(w io.Writer, resp Response) error {
	return json.NewEncoder(w).Encode(resp)
}

func DecodeResponse(r io.Reader) (Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
