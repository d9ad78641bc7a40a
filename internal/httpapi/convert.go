package httpapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// toStruct converts any JSON-encodable value into a protobuf Struct using its
// JSON field names, so both encodings share one schema.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// ── Certification ────────────────────────────────────────────────────────────

func certifyRequestFromStruct(s *structpb.Struct) (types.CertifyRequest, error) {
	f := s.GetFields()
	req := types.CertifyRequest{
		Decision:   f["decision"].GetStringValue(),
		Comments:   f["comments"].GetStringValue(),
		ReviewerID: f["reviewer_id"].GetStringValue(),
	}

	id := f["access_id"].GetNumberValue()
	if id != float64(int64(id)) {
		return types.CertifyRequest{}, fmt.Errorf("access_id must be an integer, got %v", id)
	}
	req.AccessID = int64(id)
	return req, nil
}
