package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID        string    `json:"id"`
	Tags      []string  `json:"tags,omitempty"`
	Weight    float64   `json:"weight"`
	Parent    *widget   `json:"parent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	internal  string
}

type createWidget struct {
	Name string `json:"name"`
}

func testGenerator() *Generator {
	g := NewGenerator(WithTitle("Test API"), WithVersion("9.9.9"))
	g.Register(
		Endpoint{Method: http.MethodGet, Path: "/api/v1/widgets/{id}", OperationID: "getWidget", Tag: "Widgets", Response: widget{}},
		Endpoint{Method: http.MethodPost, Path: "/api/v1/widgets", OperationID: "createWidget", Request: createWidget{}, Response: widget{}, Status: http.StatusCreated},
		Endpoint{Method: http.MethodGet, Path: "/api/v1/widgets", OperationID: "listWidgets", Response: []widget{}, Query: []string{"limit"}},
	)
	return g
}

func TestGenerate_Info(t *testing.T) {
	spec := testGenerator().Generate()

	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "Test API", spec.Info.Title)
	assert.Equal(t, "9.9.9", spec.Info.Version)
	require.Len(t, spec.Servers, 1)
	assert.Contains(t, spec.Components.Schemas, "Error")
}

func TestGenerate_Paths(t *testing.T) {
	spec := testGenerator().Generate()

	item := spec.Paths.Value("/api/v1/widgets/{id}")
	require.NotNil(t, item)
	require.NotNil(t, item.Get)
	assert.Equal(t, "getWidget", item.Get.OperationID)
	require.Len(t, item.Parameters, 1)
	assert.Equal(t, "id", item.Parameters[0].Value.Name)

	collection := spec.Paths.Value("/api/v1/widgets")
	require.NotNil(t, collection)
	require.NotNil(t, collection.Post)
	require.NotNil(t, collection.Get)
	assert.NotNil(t, collection.Post.RequestBody)
	assert.NotNil(t, collection.Post.Responses.Value("201"))
	assert.NotNil(t, collection.Get.Responses.Value("200"))
	require.Len(t, collection.Get.Parameters, 1)
	assert.Equal(t, "limit", collection.Get.Parameters[0].Value.Name)
}

func TestGenerate_StructSchemas(t *testing.T) {
	spec := testGenerator().Generate()

	ref, ok := spec.Components.Schemas["widget"]
	require.True(t, ok)
	s := ref.Value

	assert.Contains(t, s.Properties, "id")
	assert.Contains(t, s.Properties, "tags")
	assert.Contains(t, s.Properties, "created_at")
	assert.NotContains(t, s.Properties, "internal")
	assert.Equal(t, "date-time", s.Properties["created_at"].Value.Format)
	assert.Equal(t, "#/components/schemas/widget", s.Properties["parent"].Ref)
	assert.Equal(t, []string{"created_at", "id", "weight"}, s.Required)
}

func TestGenerate_Cached(t *testing.T) {
	g := testGenerator()
	first := g.Generate()
	assert.Same(t, first, g.Generate())

	g.Register(Endpoint{Method: http.MethodDelete, Path: "/api/v1/widgets/{id}", OperationID: "deleteWidget"})
	second := g.Generate()
	assert.NotSame(t, first, second)
	assert.NotNil(t, second.Paths.Value("/api/v1/widgets/{id}").Delete)
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	testGenerator().Handler()(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
}

func TestPathParams(t *testing.T) {
	assert.Equal(t, []string{"id"}, pathParams("/api/v1/plans/{id}/runs"))
	assert.Empty(t, pathParams("/api/v1/plans"))
}
