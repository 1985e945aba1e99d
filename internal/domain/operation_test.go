package domain

import (
	"testing"
)

func TestNormalizeOperation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Plain", "find", "find"},
		{"Surrounding Whitespace", "  insertOne\t", "insertOne"},
		{"Zero Width Space", "fi​nd", "find"},
		{"Zero Width Joiner", "dele‍teOne", "deleteOne"},
		{"BOM Prefix", "\uFEFFcount", "count"},
		{"Case Preserved", "FindOne", "FindOne"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeOperation(tt.input); got != tt.want {
				t.Errorf("NormalizeOperation(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsSupportedOperation(t *testing.T) {
	supported := []string{
		OpFind, OpFindOne, OpInsertOne, OpInsertMany,
		OpUpdateOne, OpUpdateMany, OpDeleteOne, OpDeleteMany,
		OpCount, OpFindOneAndUpdate, OpFindOneAndReplace, OpFindOneAndDelete,
	}
	for _, op := range supported {
		if !IsSupportedOperation(op) {
			t.Errorf("expected %q to be supported", op)
		}
	}

	rejected := []string{"aggregate", "mapReduce", "drop", "FIND", "Find", "findone", "", "$where"}
	for _, op := range rejected {
		if IsSupportedOperation(op) {
			t.Errorf("expected %q to be rejected", op)
		}
	}
}

func TestOperationRequest_Sanitize(t *testing.T) {
	t.Run("Strips Tenant Fields Everywhere", func(t *testing.T) {
		req := &OperationRequest{
			Operation: OpUpdateOne,
			Filter:    map[string]any{"tenantId": "other", "ward": "icu"},
			Document:  map[string]any{"tenant_id": "other", "name": "Ada"},
			Documents: []map[string]any{
				{"tenantID": "other", "name": "Grace"},
			},
			Update: map[string]any{
				"tenantId": "other",
				"$set":     map[string]any{"tenant_id": "other", "status": "active"},
			},
		}
		req.Sanitize()

		if _, ok := req.Filter["tenantId"]; ok {
			t.Error("tenantId not stripped from filter")
		}
		if req.Filter["ward"] != "icu" {
			t.Error("legitimate filter field lost")
		}
		if _, ok := req.Document["tenant_id"]; ok {
			t.Error("tenant_id not stripped from document")
		}
		if _, ok := req.Documents[0]["tenantID"]; ok {
			t.Error("tenantID not stripped from documents")
		}
		if _, ok := req.Update["tenantId"]; ok {
			t.Error("tenantId not stripped from update")
		}
		set := req.Update["$set"].(map[string]any)
		if _, ok := set["tenant_id"]; ok {
			t.Error("tenant_id not stripped inside $set")
		}
		if set["status"] != "active" {
			t.Error("legitimate $set field lost")
		}
	})

	t.Run("Clamps Limit And Skip", func(t *testing.T) {
		req := &OperationRequest{Operation: OpFind, Limit: 99999, Skip: -5}
		req.Sanitize()
		if req.Limit != MaxResultLimit {
			t.Errorf("expected limit clamped to %d, got %d", MaxResultLimit, req.Limit)
		}
		if req.Skip != 0 {
			t.Errorf("expected skip clamped to 0, got %d", req.Skip)
		}

		req = &OperationRequest{Operation: OpFind}
		req.Sanitize()
		if req.Limit != MaxResultLimit {
			t.Errorf("zero limit must default to %d, got %d", MaxResultLimit, req.Limit)
		}
	})

	t.Run("Defaults Return Document", func(t *testing.T) {
		req := &OperationRequest{Operation: OpFindOneAndUpdate}
		req.Sanitize()
		if req.ReturnDocument != ReturnAfter {
			t.Errorf("expected default %q, got %q", ReturnAfter, req.ReturnDocument)
		}

		req = &OperationRequest{Operation: OpFindOneAndUpdate, ReturnDocument: ReturnBefore}
		req.Sanitize()
		if req.ReturnDocument != ReturnBefore {
			t.Errorf("explicit %q must be kept, got %q", ReturnBefore, req.ReturnDocument)
		}
	})
}

func TestOperationRequest_DocumentsDelta(t *testing.T) {
	tests := []struct {
		name string
		req  OperationRequest
		want int64
	}{
		{"InsertOne", OperationRequest{Operation: OpInsertOne}, 1},
		{"InsertMany", OperationRequest{Operation: OpInsertMany, Documents: []map[string]any{{}, {}, {}}}, 3},
		{"Find", OperationRequest{Operation: OpFind}, 0},
		{"UpdateOne", OperationRequest{Operation: OpUpdateOne}, 0},
		{"DeleteMany", OperationRequest{Operation: OpDeleteMany}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.DocumentsDelta(); got != tt.want {
				t.Errorf("DocumentsDelta() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConsumesDataSize(t *testing.T) {
	consuming := []string{OpInsertOne, OpInsertMany, OpUpdateOne, OpUpdateMany, OpFindOneAndUpdate, OpFindOneAndReplace}
	for _, op := range consuming {
		if !ConsumesDataSize(op) {
			t.Errorf("expected %q to consume data size", op)
		}
	}
	reading := []string{OpFind, OpFindOne, OpCount, OpDeleteOne, OpDeleteMany, OpFindOneAndDelete}
	for _, op := range reading {
		if ConsumesDataSize(op) {
			t.Errorf("expected %q not to consume data size", op)
		}
	}
}
