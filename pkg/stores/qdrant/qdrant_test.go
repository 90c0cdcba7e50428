package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// capture records the last request a test server saw.
type capture struct {
	method string
	path   string
	body   map[string]any
}

func captureServer(status int, response string) (*httptest.Server, *capture) {
	captured := &capture{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.body = map[string]any{}
		json.NewDecoder(r.Body).Decode(&captured.body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))

	return server, captured
}

func TestEnsureCollection(t *testing.T) {
	Convey("Given a qdrant client and a test server", t, func() {
		server, captured := captureServer(http.StatusOK, `{"result":true}`)
		defer server.Close()

		client := New(server.URL, "memories")
		err := client.EnsureCollection(context.Background(), 1536)

		Convey("Then the vector config should be sent", func() {
			So(err, ShouldBeNil)
			So(captured.method, ShouldEqual, http.MethodPut)
			So(captured.path, ShouldEqual, "/collections/memories")

			vectors := captured.body["vectors"].(map[string]any)
			So(vectors["size"], ShouldEqual, 1536.0)
			So(vectors["distance"], ShouldEqual, "Cosine")
		})
	})

	Convey("Given a server where the collection already exists", t, func() {
		server, _ := captureServer(http.StatusConflict, `{}`)
		defer server.Close()

		client := New(server.URL, "memories")

		Convey("Then the conflict should not be an error", func() {
			So(client.EnsureCollection(context.Background(), 1536), ShouldBeNil)
		})
	})
}

func TestUpsert(t *testing.T) {
	Convey("Given a qdrant client and a test server", t, func() {
		server, captured := captureServer(http.StatusOK, `{"result":{}}`)
		defer server.Close()

		client := New(server.URL, "memories")
		err := client.Upsert(context.Background(), Point{
			ID:      "point-1",
			Vector:  []float32{0.1, 0.2},
			Payload: map[string]any{"owner": "owner-1"},
		})

		Convey("Then the point should be wrapped in a points array", func() {
			So(err, ShouldBeNil)
			So(captured.method, ShouldEqual, http.MethodPut)
			So(captured.path, ShouldEqual, "/collections/memories/points")

			points := captured.body["points"].([]any)
			So(len(points), ShouldEqual, 1)

			point := points[0].(map[string]any)
			So(point["id"], ShouldEqual, "point-1")
		})
	})

	Convey("Given a failing server", t, func() {
		server, _ := captureServer(http.StatusInternalServerError, `{}`)
		defer server.Close()

		client := New(server.URL, "memories")

		Convey("Then the upsert error should surface", func() {
			So(client.Upsert(context.Background(), Point{ID: "point-1"}), ShouldNotBeNil)
		})
	})
}

func TestSearch(t *testing.T) {
	Convey("Given a qdrant client and a test server for search", t, func() {
		server, captured := captureServer(
			http.StatusOK,
			`{"result":[{"id":"hit-1","score":0.92},{"id":"hit-2","score":0.81}]}`,
		)
		defer server.Close()

		client := New(server.URL, "memories")
		hits, err := client.Search(
			context.Background(),
			[]float32{0.1, 0.2},
			5,
			Filter{Owner: "owner-1", Type: "semantic"},
		)

		Convey("Then the hits should decode in order", func() {
			So(err, ShouldBeNil)
			So(len(hits), ShouldEqual, 2)
			So(hits[0].ID, ShouldEqual, "hit-1")
			So(hits[0].Score, ShouldAlmostEqual, 0.92, 1e-9)
		})

		Convey("And the filter should carry both conditions", func() {
			So(captured.path, ShouldEqual, "/collections/memories/points/search")

			filter := captured.body["filter"].(map[string]any)
			must := filter["must"].([]any)
			So(len(must), ShouldEqual, 2)

			owner := must[0].(map[string]any)
			So(owner["key"], ShouldEqual, "owner")
		})
	})
}

func TestDelete(t *testing.T) {
	Convey("Given a qdrant client and a test server", t, func() {
		server, captured := captureServer(http.StatusOK, `{"result":{}}`)
		defer server.Close()

		client := New(server.URL, "memories")
		err := client.Delete(context.Background(), "point-1")

		Convey("Then the id should be sent in the points list", func() {
			So(err, ShouldBeNil)
			So(captured.method, ShouldEqual, http.MethodPost)
			So(captured.path, ShouldEqual, "/collections/memories/points/delete")

			points := captured.body["points"].([]any)
			So(points[0], ShouldEqual, "point-1")
		})
	})
}
