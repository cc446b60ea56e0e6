package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSwagger_DocumentsHubRoutes(t *testing.T) {
	raw := NewSwagger().MustToJson()

	var doc struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))

	routes := [][2]string{
		{"/events", "post"},
		{"/events/{id}", "get"},
		{"/admin/dead-letters/{id}/replay", "post"},
		{"/admin/endpoints/{id}", "patch"},
		{"/admin/sync-jobs/{job_type}/run", "post"},
		{"/admin/retry-queue/{event_id}/requeue", "post"},
	}

	for _, r := range routes {
		path, method := r[0], r[1]
		ops, ok := doc.Paths[path]
		if assert.True(t, ok, path) {
			assert.Contains(t, ops, method, path)
		}
	}
}
