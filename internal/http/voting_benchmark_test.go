package httpserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func BenchmarkVoteHandler(b *testing.B) {
	srv := buildTestServer(b)
	comment := mustCreateComment(b, srv)
	handler := srv.voteHandler(srv.registry.Comments, srv.registry.Stars)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/comment-stars/"+comment.ID+"/4", nil)
		req.Header.Set(userIDHeader, fmt.Sprintf("bench-%d", i))
		req = attachParams(req, map[string]string{"pk": comment.ID, "score": "4"})
		rec := httptest.NewRecorder()

		handler(rec, req)
		if rec.Code != http.StatusCreated {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}
