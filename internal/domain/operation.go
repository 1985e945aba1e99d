package domain

import (
	"strings"
	"unicode"
)

// Supported abstract storage operations. The set is closed: anything else is
// rejected before it can reach the storage layer.
const (
	OpFind              = "find"
	OpFindOne           = "findOne"
	OpInsertOne         = "insertOne"
	OpInsertMany        = "insertMany"
	OpUpdateOne         = "updateOne"
	OpUpdateMany        = "updateMany"
	OpDeleteOne         = "deleteOne"
	OpDeleteMany        = "deleteMany"
	OpCount             = "count"
	OpFindOneAndUpdate  = "findOneAndUpdate"
	OpFindOneAndReplace = "findOneAndReplace"
	OpFindOneAndDelete  = "findOneAndDelete"
)

// MaxResultLimit bounds the result size of find/count regardless of caller
// input.
const MaxResultLimit = 1000

// Return-document selection for the findOneAnd* operations.
const (
	ReturnBefore = "before"
	ReturnAfter  = "after"
)

var supportedOperations = map[string]struct{}{
	OpFind:              {},
	OpFindOne:           {},
	OpInsertOne:         {},
	OpInsertMany:        {},
	OpUpdateOne:         {},
	OpUpdateMany:        {},
	OpDeleteOne:         {},
	OpDeleteMany:        {},
	OpCount:             {},
	OpFindOneAndUpdate:  {},
	OpFindOneAndReplace: {},
	OpFindOneAndDelete:  {},
}

// Caller-supplied tenant-scoping fields are always discarded; the resolved
// tenant alone decides the partition.
var tenantScopeFields = []string{"tenantId", "tenant_id", "tenantID"}

// OperationRequest is the ephemeral, per-call request handed to the
// dispatcher after identity resolution.
type OperationRequest struct {
	Operation      string           `json:"operation"`
	Filter         map[string]any   `json:"filter,omitempty"`
	Document       map[string]any   `json:"document,omitempty"`
	Documents      []map[string]any `json:"documents,omitempty"`
	Update         map[string]any   `json:"update,omitempty"`
	ID             string           `json:"id,omitempty"`
	Limit          int64            `json:"limit,omitempty"`
	Skip           int64            `json:"skip,omitempty"`
	Sort           map[string]int   `json:"sort,omitempty"`
	ReturnDocument string           `json:"returnDocument,omitempty"`
}

// OperationResult is the shaped outcome of a dispatched operation.
type OperationResult struct {
	Operation string `json:"operation"`
	Data      any    `json:"data"`

	// DeletedCount feeds the post-delete quota decrement; it is part of Data
	// for callers.
	DeletedCount int64 `json:"-"`
}

// NormalizeOperation trims whitespace and strips invisible formatting runes
// (zero-width spaces, joiners, BOM) so lookalike strings cannot slip past the
// operation switch.
func NormalizeOperation(op string) string {
	op = strings.TrimSpace(op)
	return strings.Map(func(r rune) rune {
		if unicode.In(r, unicode.Cf) {
			return -1
		}
		return r
	}, op)
}

// IsSupportedOperation reports whether op (already normalized) belongs to the
// closed operation set.
func IsSupportedOperation(op string) bool {
	_, ok := supportedOperations[op]
	return ok
}

// IsWriteOperation reports whether op inserts new documents.
func IsWriteOperation(op string) bool {
	return op == OpInsertOne || op == OpInsertMany
}

// ConsumesDataSize reports whether op stores caller-supplied payload bytes.
func ConsumesDataSize(op string) bool {
	switch op {
	case OpInsertOne, OpInsertMany, OpUpdateOne, OpUpdateMany, OpFindOneAndUpdate, OpFindOneAndReplace:
		return true
	}
	return false
}

// DocumentsDelta returns how many documents op would add.
func (r *OperationRequest) DocumentsDelta() int64 {
	switch r.Operation {
	case OpInsertOne:
		return 1
	case OpInsertMany:
		return int64(len(r.Documents))
	}
	return 0
}

// Sanitize strips caller-supplied tenant-scoping fields from every payload of
// the request and clamps the result limit. Callers can never widen or
// redirect their own scope.
func (r *OperationRequest) Sanitize() {
	stripTenantScope(r.Filter)
	stripTenantScope(r.Document)
	for _, doc := range r.Documents {
		stripTenantScope(doc)
	}
	sanitizeUpdate(r.Update)

	if r.Limit <= 0 || r.Limit > MaxResultLimit {
		r.Limit = MaxResultLimit
	}
	if r.Skip < 0 {
		r.Skip = 0
	}
	if r.ReturnDocument != ReturnBefore {
		r.ReturnDocument = ReturnAfter
	}
}

func stripTenantScope(doc map[string]any) {
	if doc == nil {
		return
	}
	for _, field := range tenantScopeFields {
		delete(doc, field)
	}
}

// sanitizeUpdate strips tenant fields both at the top level and inside update
// operators such as $set and $setOnInsert.
func sanitizeUpdate(update map[string]any) {
	if update == nil {
		return
	}
	stripTenantScope(update)
	for key, value := range update {
		if !strings.HasPrefix(key, "$") {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			stripTenantScope(nested)
		}
	}
}
