package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/comment-ratings/internal/domain"
	"github.com/Clark-Hu/comment-ratings/internal/ratings"
	"github.com/Clark-Hu/comment-ratings/internal/repository"
)

const (
	maxRequestBody = 1 << 20 // 1 MiB
	maxBodyLength  = 4000
)

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type commentCreateRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

type commentListResponse struct {
	Items      []commentResponse `json:"items"`
	NextCursor *string           `json:"nextCursor,omitempty"`
}

type commentResponse struct {
	ID        string          `json:"id"`
	Author    string          `json:"author"`
	Body      string          `json:"body"`
	Rating    ratingsResponse `json:"rating"`
	Stars     ratingsResponse `json:"stars"`
	CreatedAt time.Time       `json:"createdAt"`
}

type ratingsResponse struct {
	Votes    int64    `json:"votes"`
	Score    float64  `json:"score"`
	Average  float64  `json:"average"`
	Rating   *float64 `json:"rating,omitempty"`
	YourVote *float64 `json:"yourVote,omitempty"`
}

type voteListResponse struct {
	Items []voteItemResponse `json:"items"`
}

type voteItemResponse struct {
	Score     float64   `json:"score"`
	UserID    *string   `json:"userId,omitempty"`
	IPAddress string    `json:"ipAddress"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	filters, err := buildCommentFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.repo.Comments.List(r.Context(), filters)
	if err != nil {
		s.logger.Printf("list comments error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list comments")
		return
	}

	items := make([]commentResponse, 0, len(result.Items))
	for _, comment := range result.Items {
		items = append(items, toCommentResponse(comment))
	}
	s.respondJSON(w, http.StatusOK, commentListResponse{Items: items, NextCursor: result.NextCursor})
}

func buildCommentFilters(query url.Values) (repository.CommentListFilters, error) {
	var filters repository.CommentListFilters

	if val := strings.TrimSpace(query.Get("author")); val != "" {
		filters.Author = &val
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	if !s.verifyBearer(r.Header.Get("Authorization")) {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req commentCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	author := strings.TrimSpace(req.Author)
	body := strings.TrimSpace(req.Body)
	if author == "" || body == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "author and body are required")
		return
	}
	if len([]rune(body)) > maxBodyLength {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("body must be at most %d characters", maxBodyLength))
		return
	}

	comment, err := s.repo.Comments.Create(r.Context(), repository.CommentCreateParams{Author: author, Body: body})
	if err != nil {
		s.logger.Printf("create comment error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create comment")
		return
	}

	w.Header().Set("Location", "/comments/"+url.PathEscape(comment.ID))
	s.respondJSON(w, http.StatusCreated, toCommentResponse(comment))
}

func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	comment, err := s.repo.Comments.GetByID(r.Context(), chi.URLParam(r, "pk"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Printf("fetch comment error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch comment")
		return
	}
	s.respondJSON(w, http.StatusOK, toCommentResponse(comment))
}

// handleGetRating reports the aggregate of one rating field of a comment
// together with the caller's own vote.
// ratingManager resolves {pk} and {field}, in that order, writing the error
// response when either is unknown.
func (s *Server) ratingManager(w http.ResponseWriter, r *http.Request) (*ratings.Manager, bool) {
	entity := s.registry.Comments
	objectID := chi.URLParam(r, "pk")
	if err := s.ratings.Resolve(r.Context(), entity, objectID); err != nil {
		s.respondVoteError(w, err)
		return nil, false
	}
	field, err := entity.Field(chi.URLParam(r, "field"))
	if err != nil {
		s.respondVoteError(w, err)
		return nil, false
	}
	return s.ratings.ManagerFor(entity, objectID, field), true
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	mgr, ok := s.ratingManager(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	field := mgr.Field()
	agg, err := mgr.Aggregate(ctx)
	if err != nil {
		s.logger.Printf("aggregate %s error: %v", field.Name(), err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch rating")
		return
	}

	resp := ratingsResponse{
		Votes:   agg.Votes,
		Score:   agg.Score,
		Average: roundToOneDecimal(agg.Average()),
		Rating:  agg.Rating,
	}

	ballot := s.ballotFrom(r)
	if !ballot.Actor.IsAnonymous() || field.Config().AllowAnonymous {
		score, found, err := mgr.CurrentVoteOf(ctx, ballot)
		if err != nil {
			s.logger.Printf("current vote of %s error: %v", ballot.Actor, err)
		} else if found {
			resp.YourVote = &score
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
	mgr, ok := s.ratingManager(w, r)
	if !ok {
		return
	}
	votes, err := mgr.Votes(r.Context())
	if err != nil {
		s.logger.Printf("list %s votes error: %v", mgr.Field().Name(), err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list votes")
		return
	}

	resp := voteListResponse{Items: make([]voteItemResponse, 0, len(votes))}
	for _, v := range votes {
		resp.Items = append(resp.Items, voteItemResponse{
			Score:     v.Score,
			UserID:    v.UserID,
			IPAddress: v.PartialIPAddress(),
			CreatedAt: v.CreatedAt,
			UpdatedAt: v.UpdatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func toCommentResponse(c domain.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		Author:    c.Author,
		Body:      c.Body,
		Rating:    toRatingsResponse(c.Rating),
		Stars:     toRatingsResponse(c.Stars),
		CreatedAt: c.CreatedAt,
	}
}

func toRatingsResponse(r domain.Rating) ratingsResponse {
	resp := ratingsResponse{Votes: r.Votes, Score: r.Score, Rating: r.Rating}
	if r.Votes > 0 {
		resp.Average = roundToOneDecimal(r.Score / float64(r.Votes))
	}
	return resp
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Printf("failed to encode response: %v", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

func (s *Server) verifyBearer(header string) bool {
	if header == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token == s.cfg.AuthToken
}

func roundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10.0
}
