package decode

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/typegate/internal/javaser"
)

type nativeDecoder struct {
	opts Options
}

// NewNative returns a decoder for Java object serialization streams. The
// checker sees each class name as soon as its descriptor is read.
func NewNative(opts Options) Decoder {
	return &nativeDecoder{opts: opts}
}

func (d *nativeDecoder) Format() Format { return FormatNative }

func (d *nativeDecoder) Decode(raw []byte) (*Result, error) {
	gk := newGatekeeper(FormatNative, d.opts)

	r, err := javaser.NewReader(raw, gk.check, d.opts.maxDepth())
	if err != nil {
		return nil, streamError(err)
	}
	content, err := r.ReadContent()
	if err != nil {
		return nil, streamError(err)
	}
	if r.Remaining() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after object", ErrMalformedPayload, r.Remaining())
	}

	switch v := content.(type) {
	case string:
		return &Result{Value: v, Type: javaser.StringClass, Candidates: gk.seen}, nil
	case *javaser.Object:
		value, err := d.bind(v)
		if err != nil {
			return nil, err
		}
		return &Result{Value: value, Type: v.Class, Candidates: gk.seen}, nil
	}
	return nil, fmt.Errorf("%w: stream holds a null reference", ErrMalformedPayload)
}

// bind populates the registered Go type for obj. It runs only after every
// class in the stream was admitted.
func (d *nativeDecoder) bind(obj *javaser.Object) (any, error) {
	target, err := construct(d.opts.Registry, obj.Class)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(obj.Map())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("%w: bind %s: %v", ErrMalformedPayload, obj.Class, err)
	}
	if hook, ok := target.(ObjectReader); ok {
		if err := hook.ReadObject(); err != nil {
			return nil, fmt.Errorf("readObject %s: %w", obj.Class, err)
		}
	}
	return target, nil
}

func streamError(err error) error {
	var rejected *TypeRejectedError
	switch {
	case errors.As(err, &rejected):
		return rejected
	case errors.Is(err, javaser.ErrTooDeep):
		return fmt.Errorf("%w: %v", ErrTooDeep, err)
	case errors.Is(err, javaser.ErrUnsupported):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
}
