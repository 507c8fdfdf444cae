package httputil

import "net/http"

// Resource is a single JSON:API resource object.
type Resource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes"`
}

// WriteJSONAPIResource writes {"data": resource}.
func WriteJSONAPIResource(w http.ResponseWriter, status int, resourceType, id string, attributes any) {
	WriteJSONAPI(w, status, map[string]any{
		"data": Resource{Type: resourceType, ID: id, Attributes: attributes},
	})
}

// WriteJSONAPICollection writes {"data": [...], "meta": meta}. A nil meta
// is omitted and a nil slice is written as [].
func WriteJSONAPICollection(w http.ResponseWriter, status int, resources []Resource, meta map[string]any) {
	if resources == nil {
		resources = []Resource{}
	}
	doc := map[string]any{"data": resources}
	if meta != nil {
		doc["meta"] = meta
	}
	WriteJSONAPI(w, status, doc)
}
