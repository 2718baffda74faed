package requestdata

import (
	"context"

	"github.com/google/uuid"
)

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData is the acting identity for the current request. Responders
// are often anonymous magic-link bearers: RunID is set from the run access
// token while UserID stays nil.
type RequestData struct {
	TokenString string
	RunID       uuid.UUID
	StoreID     uuid.UUID
	UserID      *uuid.UUID
	ActorLabel  string
}

// Actor returns the identity recorded on coverage rows and run completion,
// or nil for anonymous bearers with no label.
func (rd *RequestData) Actor() *string {
	if rd == nil {
		return nil
	}
	if rd.UserID != nil {
		s := rd.UserID.String()
		return &s
	}
	if rd.ActorLabel != "" {
		label := rd.ActorLabel
		return &label
	}
	return nil
}
