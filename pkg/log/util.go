package log

import (
	"fmt"

	"go.uber.org/zap"
)

// toFields turns alternating key/value pairs into zap fields. A bare error
// or zap.Field may appear in place of a pair. A trailing unpaired value and
// non-string keys are kept under synthetic keys rather than dropped.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case zap.Field:
			fields = append(fields, v)
			continue
		case error:
			fields = append(fields, zap.Error(v))
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any("extra", args[i]))
			break
		}

		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("key%d(%v)", i, args[i])
		}
		i++
		if b, ok := args[i].([]byte); ok {
			// Frames are mostly printable AT text.
			fields = append(fields, zap.ByteString(key, b))
			continue
		}
		fields = append(fields, zap.Any(key, args[i]))
	}
	return fields
}
