package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// wantsProtobuf returns true if the client asked for a protobuf response.
func wantsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mt == "application/x-protobuf" || mt == "application/protobuf" {
			return true
		}
	}
	return false
}

// statusToProto encodes the status document as a google.protobuf.Struct with
// the same field names as the JSON form.
func statusToProto(st types.StatusResponse, health map[string]bool) (*structpb.Struct, error) {
	b, err := json.Marshal(statusBody{StatusResponse: st, Health: health})
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		// Fall back to a plain-text error if marshalling fails.
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
