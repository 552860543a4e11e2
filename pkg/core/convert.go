package core

import (
	"time"
)

// Payload field names shared with the storage backends and the query-side
// decay formula. Changing one is a data migration.
const (
	fieldContent         = "content"
	fieldContentHash     = "content_hash"
	fieldMemoryType      = "memory_type"
	fieldContentKind     = "content_kind"
	fieldGroupID         = "group_id"
	fieldSource          = "source"
	fieldExternalID      = "external_id"
	fieldSourceAuthority = "source_authority"
	fieldCreatedAt       = "created_at"
	fieldStoredAt        = "stored_at"
	fieldHalfLife        = "decay_half_life_days"
	fieldChunkIndex      = "chunk_index"
	fieldTotalChunks     = "total_chunks"
	fieldOriginalSize    = "original_size_tokens"
	fieldIsCurrent       = "is_current"
	fieldVersion         = "version"
)

// recordToPayload flattens a record into the stored payload map. Caller
// metadata goes in first so reserved fields always win.
func recordToPayload(record *MemoryRecord) map[string]interface{} {
	payload := make(map[string]interface{}, len(record.Metadata)+14)
	for k, v := range record.Metadata {
		payload[k] = v
	}

	payload[fieldContent] = record.Content
	payload[fieldContentHash] = record.ContentHash
	payload[fieldMemoryType] = string(record.Type)
	payload[fieldContentKind] = string(record.Kind)
	payload[fieldGroupID] = record.GroupID
	payload[fieldSource] = record.Source
	payload[fieldSourceAuthority] = record.SourceAuthority
	payload[fieldCreatedAt] = record.CreatedAt.UTC().Format(time.RFC3339)
	payload[fieldStoredAt] = record.StoredAt.UTC().Format(time.RFC3339)
	payload[fieldHalfLife] = record.DecayHalfLifeDays
	payload[fieldIsCurrent] = record.IsCurrent
	payload[fieldVersion] = record.Version

	if record.Chunking != nil {
		payload[fieldChunkIndex] = record.Chunking.ChunkIndex
		payload[fieldTotalChunks] = record.Chunking.TotalChunks
		payload[fieldOriginalSize] = record.Chunking.OriginalSizeTokens
	}
	return payload
}

// payloadToRecord rebuilds a record from a stored payload. Unrecognized
// payload fields land back in Metadata.
func payloadToRecord(id, collection string, payload map[string]interface{}) *MemoryRecord {
	record := &MemoryRecord{
		ID:                id,
		Collection:        collection,
		Content:           asString(payload[fieldContent]),
		ContentHash:       asString(payload[fieldContentHash]),
		Type:              MemoryType(asString(payload[fieldMemoryType])),
		Kind:              ContentKind(asString(payload[fieldContentKind])),
		GroupID:           asString(payload[fieldGroupID]),
		Source:            asString(payload[fieldSource]),
		SourceAuthority:   asFloat(payload[fieldSourceAuthority]),
		CreatedAt:         asTime(payload[fieldCreatedAt]),
		StoredAt:          asTime(payload[fieldStoredAt]),
		DecayHalfLifeDays: asFloat(payload[fieldHalfLife]),
		IsCurrent:         asBool(payload[fieldIsCurrent]),
		Version:           int(asFloat(payload[fieldVersion])),
	}

	if _, ok := payload[fieldTotalChunks]; ok {
		record.Chunking = &ChunkingMetadata{
			ChunkIndex:         int(asFloat(payload[fieldChunkIndex])),
			TotalChunks:        int(asFloat(payload[fieldTotalChunks])),
			OriginalSizeTokens: int(asFloat(payload[fieldOriginalSize])),
		}
	}

	reserved := map[string]bool{
		fieldContent: true, fieldContentHash: true, fieldMemoryType: true,
		fieldContentKind: true, fieldGroupID: true, fieldSource: true,
		fieldSourceAuthority: true, fieldCreatedAt: true, fieldStoredAt: true,
		fieldHalfLife: true, fieldChunkIndex: true, fieldTotalChunks: true,
		fieldOriginalSize: true, fieldIsCurrent: true, fieldVersion: true,
	}
	for k, v := range payload {
		if !reserved[k] {
			if record.Metadata == nil {
				record.Metadata = make(map[string]interface{})
			}
			record.Metadata[k] = v
		}
	}
	return record
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
